package domain

import (
	"fmt"
	"strings"
	"time"
)

// PrefixKind selects how a command body is prefixed on the wire.
type PrefixKind string

const (
	PrefixSC     PrefixKind = "sc"     // "/silent-command "
	PrefixMC     PrefixKind = "mc"     // "/measured-command "
	PrefixC      PrefixKind = "c"      // "/command "
	PrefixCustom PrefixKind = "custom" // verbatim Value
)

// Prefix is the string prepended to a rendered command body.
type Prefix struct {
	Kind  PrefixKind `json:"kind"`
	Value string     `json:"value,omitempty"`
}

// String returns the literal prefix text.
func (p Prefix) String() string {
	switch p.Kind {
	case PrefixSC:
		return "/silent-command "
	case PrefixMC:
		return "/measured-command "
	case PrefixC:
		return "/command "
	case PrefixCustom:
		return p.Value
	default:
		return ""
	}
}

// Validate rejects unknown prefix kinds.
func (p Prefix) Validate() error {
	switch p.Kind {
	case PrefixSC, PrefixMC, PrefixC, PrefixCustom:
		return nil
	default:
		return fmt.Errorf("unknown prefix kind %q", p.Kind)
	}
}

// LuaKind discriminates inline bodies from script files.
type LuaKind string

const (
	LuaInline LuaKind = "inline"
	LuaFile   LuaKind = "file"
)

// LuaCommand is the body of an RCON command: either inline text or a
// path relative to the scripts directory, read lazily at render time.
type LuaCommand struct {
	Kind LuaKind `json:"kind"`
	Body string  `json:"body,omitempty"`
	Path string  `json:"path,omitempty"`
}

// Validate checks the body source for its kind.
func (l LuaCommand) Validate() error {
	switch l.Kind {
	case LuaInline:
		if l.Body == "" {
			return fmt.Errorf("inline command requires a body")
		}
	case LuaFile:
		if l.Path == "" {
			return fmt.Errorf("file command requires a path")
		}
		if strings.Contains(l.Path, "..") {
			return fmt.Errorf("script path must stay inside the scripts directory")
		}
	default:
		return fmt.Errorf("unknown lua command kind %q", l.Kind)
	}
	return nil
}

// RconCommand is the sendable payload of a command.
type RconCommand struct {
	Prefix    Prefix     `json:"prefix"`
	Lua       LuaCommand `json:"lua"`
	Variables []Variable `json:"variables,omitempty"`
}

// Validate checks all parts of the payload.
func (rc RconCommand) Validate() error {
	if err := rc.Prefix.Validate(); err != nil {
		return err
	}
	if err := rc.Lua.Validate(); err != nil {
		return err
	}
	for _, v := range rc.Variables {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Command is a named RCON payload plus the server triggers that fire it.
// Names are unique case-insensitively.
type Command struct {
	Name      string          `json:"name"`
	Rcon      RconCommand     `json:"rcon"`
	Triggers  []ServerTrigger `json:"triggers"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
}

// Validate checks the command and every trigger binding.
func (c Command) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("command name is required")
	}
	if err := c.Rcon.Validate(); err != nil {
		return fmt.Errorf("command %q: %w", c.Name, err)
	}
	for _, st := range c.Triggers {
		if st.ServerID == "" {
			return fmt.Errorf("command %q: trigger has no server", c.Name)
		}
		if err := st.Trigger.Validate(); err != nil {
			return fmt.Errorf("command %q: %w", c.Name, err)
		}
	}
	return nil
}

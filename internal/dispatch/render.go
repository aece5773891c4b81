package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/madhouse/rconpanel/internal/domain"
)

// Render produces the exact string sent over RCON: prefix, one lua
// local per declared variable, then the body with placeholders
// substituted. Deterministic for a fixed command and event.
func (d *Dispatcher) Render(rc domain.RconCommand, ev domain.IntegrationEvent) (string, error) {
	body, err := d.commandBody(rc.Lua)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(rc.Variables)+1)
	values := map[string]string{
		"USERNAME": ev.Username,
		"MESSAGE":  ev.Message,
	}
	for _, v := range rc.Variables {
		value, err := resolveVariable(v, ev)
		if err != nil {
			return "", err
		}
		values[v.Name] = value
		parts = append(parts, v.LuaLine(value))
	}

	parts = append(parts, substitute(body, values))
	return rc.Prefix.String() + strings.Join(parts, "\n"), nil
}

// commandBody reads file-backed bodies lazily so script edits take
// effect on the next dispatch.
func (d *Dispatcher) commandBody(lua domain.LuaCommand) (string, error) {
	switch lua.Kind {
	case domain.LuaInline:
		return lua.Body, nil
	case domain.LuaFile:
		data, err := os.ReadFile(filepath.Join(d.scriptsDir, lua.Path))
		if err != nil {
			return "", fmt.Errorf("reading script %s: %w", lua.Path, err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	default:
		return "", fmt.Errorf("unknown lua command kind %q", lua.Kind)
	}
}

// resolveVariable finds a variable's value: automatic bindings first,
// then the chat message, then the declared default.
func resolveVariable(v domain.Variable, ev domain.IntegrationEvent) (string, error) {
	switch v.Name {
	case "USERNAME":
		return ev.Username, nil
	case "MESSAGE":
		return ev.Message, nil
	}
	if value, ok := v.ExtractValue(ev.Message); ok {
		return value, nil
	}
	if v.Default != "" {
		return v.Default, nil
	}
	return "", fmt.Errorf("variable %s has no value", v.Name)
}

// substitute replaces %%NAME%% placeholders. Placeholders without a
// known value stay verbatim.
func substitute(body string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for name, value := range values {
		pairs = append(pairs, "%%"+name+"%%", value)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// VarType is the declared type of a command variable.
type VarType string

const (
	VarInt    VarType = "int"
	VarFloat  VarType = "float"
	VarBool   VarType = "bool"
	VarString VarType = "string"
)

// Variable is one declared command variable. Values come from the
// triggering chat message ("x=20"), the default, or automatic bindings
// (USERNAME, MESSAGE).
type Variable struct {
	Name    string  `json:"name"`
	Type    VarType `json:"type"`
	Default string  `json:"default,omitempty"`
}

// ParseVariableSpec parses a comma-separated declaration list like
// "x:int=5,y:float,USERNAME". A missing type means string.
func ParseVariableSpec(spec string) ([]Variable, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	var vars []Variable
	seen := make(map[string]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var v Variable
		decl, def, hasDefault := strings.Cut(part, "=")
		name, typ, hasType := strings.Cut(strings.TrimSpace(decl), ":")
		v.Name = strings.TrimSpace(name)
		if v.Name == "" {
			return nil, fmt.Errorf("variable declaration %q has no name", part)
		}
		if hasType {
			switch VarType(strings.TrimSpace(typ)) {
			case VarInt, VarFloat, VarBool, VarString:
				v.Type = VarType(strings.TrimSpace(typ))
			default:
				return nil, fmt.Errorf("variable %s: unknown type %q", v.Name, typ)
			}
		} else {
			v.Type = VarString
		}
		if hasDefault {
			v.Default = strings.TrimSpace(def)
			if err := v.CheckValue(v.Default); err != nil {
				return nil, fmt.Errorf("variable %s: bad default: %w", v.Name, err)
			}
		}

		if seen[v.Name] {
			return nil, fmt.Errorf("variable %s declared twice", v.Name)
		}
		seen[v.Name] = true
		vars = append(vars, v)
	}
	return vars, nil
}

// Validate checks the variable's declared type.
func (v Variable) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("variable has no name")
	}
	switch v.Type {
	case VarInt, VarFloat, VarBool, VarString:
	default:
		return fmt.Errorf("variable %s: unknown type %q", v.Name, v.Type)
	}
	if v.Default != "" {
		if err := v.CheckValue(v.Default); err != nil {
			return fmt.Errorf("variable %s: bad default: %w", v.Name, err)
		}
	}
	return nil
}

// CheckValue reports whether a raw string parses as the declared type.
func (v Variable) CheckValue(raw string) error {
	switch v.Type {
	case VarInt:
		if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
			return fmt.Errorf("%q is not an int", raw)
		}
	case VarFloat:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return fmt.Errorf("%q is not a float", raw)
		}
	case VarBool:
		if _, err := strconv.ParseBool(raw); err != nil {
			return fmt.Errorf("%q is not a bool", raw)
		}
	}
	return nil
}

// ExtractValue looks for a "name=value" token in a chat message.
// Tokens that fail the type check are ignored.
func (v Variable) ExtractValue(message string) (string, bool) {
	for _, field := range strings.Fields(message) {
		name, value, ok := strings.Cut(field, "=")
		if !ok || name != v.Name {
			continue
		}
		if err := v.CheckValue(value); err != nil {
			continue
		}
		return value, true
	}
	return "", false
}

// LuaLine renders the variable as a lua local declaration. Strings are
// quoted; numeric and bool values are emitted verbatim.
func (v Variable) LuaLine(value string) string {
	if v.Type == VarString {
		return fmt.Sprintf("local %s = %q;", v.Name, value)
	}
	return fmt.Sprintf("local %s = %s;", v.Name, value)
}

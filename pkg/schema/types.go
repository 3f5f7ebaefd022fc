package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Type validates values bound to a typed parameter and parses them from text.
type Type interface {
	// Name returns the declared name of the type (e.g., "string", "[int]").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
	// Parse converts text input, as typed at a prompt, into a value of this type.
	Parse(text string) (any, error)
}

type stringType struct{}

func (stringType) Name() string { return "string" }

func (stringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

func (stringType) Parse(text string) (any, error) { return text, nil }

type intType struct{}

func (intType) Name() string { return "int" }

func (intType) Validate(value any) error {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return nil
	case float64:
		// JSON numbers decode as float64
		if v == float64(int64(v)) {
			return nil
		}
		return fmt.Errorf("expected int, got float (not a whole number)")
	default:
		return fmt.Errorf("expected int, got %T", value)
	}
}

func (intType) Parse(text string) (any, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("expected int, got %q", text)
	}
	return n, nil
}

type floatType struct{}

func (floatType) Name() string { return "float" }

func (floatType) Validate(value any) error {
	switch value.(type) {
	case float32, float64, int, int8, int16, int32, int64:
		return nil
	default:
		return fmt.Errorf("expected float, got %T", value)
	}
}

func (floatType) Parse(text string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return nil, fmt.Errorf("expected float, got %q", text)
	}
	return f, nil
}

type boolType struct{}

func (boolType) Name() string { return "bool" }

func (boolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

func (boolType) Parse(text string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "y", "yes", "on":
		return true, nil
	case "n", "no", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("expected bool, got %q", text)
	}
	return b, nil
}

// sliceType validates slices of a specific element type. Text input is a
// comma-separated list.
type sliceType struct {
	elem Type
}

func (t sliceType) Name() string { return "[" + t.elem.Name() + "]" }

func (t sliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected slice, got %T", value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func (t sliceType) Parse(text string) (any, error) {
	out := []any{}
	if strings.TrimSpace(text) == "" {
		return out, nil
	}
	for i, part := range strings.Split(text, ",") {
		v, err := t.elem.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// String, Int, Float and Bool return the built-in scalar types.
func String() Type { return stringType{} }
func Int() Type    { return intType{} }
func Float() Type  { return floatType{} }
func Bool() Type   { return boolType{} }

// Slice creates a slice type validator for elements of the given type.
func Slice(elem Type) Type { return sliceType{elem: elem} }

// ParseType converts a declared type name to a Type.
// Supports "string", "int", "float", "bool" and slices such as "[string]".
func ParseType(name string) (Type, error) {
	name = strings.TrimSpace(name)
	if len(name) > 2 && name[0] == '[' && name[len(name)-1] == ']' {
		elem, err := ParseType(name[1 : len(name)-1])
		if err != nil {
			return nil, err
		}
		return Slice(elem), nil
	}

	switch name {
	case "", "string", "any":
		return String(), nil
	case "int", "integer":
		return Int(), nil
	case "float", "number":
		return Float(), nil
	case "bool", "boolean":
		return Bool(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", name)
	}
}

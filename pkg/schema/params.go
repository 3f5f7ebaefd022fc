package schema

import (
	"github.com/aretw0/chainflow/pkg/domain"
)

// CheckDeclarations reports parameters declaring a type ParseType rejects.
func CheckDeclarations(params []domain.Parameter) error {
	var errs []error
	for _, p := range params {
		if _, err := ParseType(p.Type); err != nil {
			errs = append(errs, &ValidationError{Key: p.Name, Reason: err.Error()})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// CheckParameters validates the values vars binds to typed params. Absent
// values and untyped params are not checked.
func CheckParameters(params []domain.Parameter, vars map[string]any) error {
	var errs []error
	for _, p := range params {
		if p.Type == "" {
			continue
		}
		value, ok := vars[p.Name]
		if !ok || value == nil {
			continue
		}
		t, err := ParseType(p.Type)
		if err != nil {
			errs = append(errs, &ValidationError{Key: p.Name, Reason: err.Error()})
			continue
		}
		if err := t.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: p.Name, Reason: err.Error(), Value: value})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// Coerce parses text typed for p into a value of its declared type.
func Coerce(p domain.Parameter, text string) (any, error) {
	t, err := ParseType(p.Type)
	if err != nil {
		return nil, &ValidationError{Key: p.Name, Reason: err.Error()}
	}
	v, err := t.Parse(text)
	if err != nil {
		return nil, &ValidationError{Key: p.Name, Reason: err.Error(), Value: text}
	}
	return v, nil
}

// Package schema types the parameters of agents.
//
// A domain.Parameter may declare a Type: "string", "int", "float", "bool" or a
// slice such as "[string]". Definitions reject unknown types up front, resume
// requests are checked against the waiting parameters, and text typed at a
// prompt is parsed into the declared type:
//
//	p := domain.Parameter{Name: "retries", Type: "int", Required: true}
//	v, err := schema.Coerce(p, "3") // 3 (int)
//
//	err = schema.CheckParameters([]domain.Parameter{p}, map[string]any{"retries": "many"})
//	errors.Is(err, schema.ErrInvalidValue) // true
package schema

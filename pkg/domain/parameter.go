package domain

// Parameter declares an input slot of an agent.
// It is built once by application wiring and treated as immutable afterwards.
type Parameter struct {
	Name        string `json:"name" yaml:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	Required    bool   `json:"required" yaml:"required" mapstructure:"required"`

	// IsDefault marks the slot that binds to the previous step's default
	// output value when memory holds nothing under Name.
	IsDefault bool `json:"is_default,omitempty" yaml:"default,omitempty" mapstructure:"default"`
}

// Required declares a mandatory parameter.
func Required(name string) Parameter {
	return Parameter{Name: name, Required: true}
}

// Optional declares a parameter that may stay unbound.
func Optional(name string) Parameter {
	return Parameter{Name: name}
}

// ParameterNames returns the names of the given parameters, in order.
func ParameterNames(params []Parameter) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

package dao

// StateParameter is the parameter name used to filter by lifecycle state
const StateParameter = "State"

// Parameter is a List filter
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter creates a parameter; several values form an OR set
func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

package customer

import "fmt"

// Record is one customer's attributes keyed by field name.
// Categorical values are strings, numeric values are float64.
type Record map[string]any

// String returns the categorical value of a field, or false when it is absent
// or not a string.
func (r Record) String(name string) (string, bool) {
	v, ok := r[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float returns the numeric value of a field. JSON-decoded integers and the
// other Go numeric kinds are accepted.
func (r Record) Float(name string) (float64, error) {
	v, ok := r[name]
	if !ok {
		return 0, fmt.Errorf("field %q is missing", name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("field %q is not numeric (got %T)", name, v)
	}
}

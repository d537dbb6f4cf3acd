package customer

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/spf13/cast"
)

// FormError reports a value the form surface itself rejects, before the
// record ever reaches the pipeline.
type FormError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FormError) Error() string {
	return fmt.Sprintf("field %q: %s (got %q)", e.Field, e.Reason, e.Value)
}

// ParseForm builds a Record from submitted form values.
//
// Categorical values are copied verbatim; vocabulary membership is the
// pipeline's concern. Numeric values are coerced and range checked, and a
// blank numeric input takes the field default.
func (s Schema) ParseForm(values url.Values) (Record, error) {
	rec := make(Record, len(s.Fields))
	for _, f := range s.Fields {
		raw := strings.TrimSpace(values.Get(f.Name))

		switch f.Kind {
		case Categorical:
			if raw == "" {
				continue
			}
			rec[f.Name] = raw
		case Numeric:
			if raw == "" {
				rec[f.Name] = f.Default
				continue
			}
			v, err := parseNumber(f, raw)
			if err != nil {
				return nil, err
			}
			rec[f.Name] = v
		}
	}
	return rec, nil
}

// CheckNumber applies the field's numeric constraints to an already-typed value.
func (f Field) CheckNumber(v float64) error {
	raw := cast.ToString(v)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &FormError{Field: f.Name, Value: raw, Reason: "must be a finite number"}
	}
	if f.Integer && v != math.Trunc(v) {
		return &FormError{Field: f.Name, Value: raw, Reason: "must be a whole number"}
	}
	if f.Min != nil && v < *f.Min {
		return &FormError{Field: f.Name, Value: raw, Reason: fmt.Sprintf("must be at least %v", *f.Min)}
	}
	if f.Max != nil && v > *f.Max {
		return &FormError{Field: f.Name, Value: raw, Reason: fmt.Sprintf("must be at most %v", *f.Max)}
	}
	return nil
}

func parseNumber(f Field, raw string) (float64, error) {
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, &FormError{Field: f.Name, Value: raw, Reason: "must be a number"}
	}
	if err := f.CheckNumber(v); err != nil {
		return 0, err
	}
	return v, nil
}

package customer

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind distinguishes categorical from numeric form fields.
type Kind string

const (
	Categorical Kind = "categorical"
	Numeric     Kind = "numeric"
)

// maxFields bounds the size of a form.
const maxFields = 200

var identifierPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.]*$`)

// Field describes one input on the form surface.
type Field struct {
	Name    string   `json:"name"`
	Label   string   `json:"label,omitempty"`
	Kind    Kind     `json:"kind"`
	Options []string `json:"options,omitempty"`

	// Numeric bounds. Nil means unbounded.
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Default float64  `json:"default"`
	Step    float64  `json:"step,omitempty"`
	Integer bool     `json:"integer,omitempty"`
}

// DisplayLabel returns the label, falling back to the field name.
func (f Field) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

// Schema is the ordered set of fields a form presents.
type Schema struct {
	Fields []Field `json:"fields"`
}

// Field looks up a field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns the field names in form order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Defaults builds the record a fresh form is pre-filled with: first option for
// categorical fields, the default for numeric ones.
func (s Schema) Defaults() Record {
	rec := make(Record, len(s.Fields))
	for _, f := range s.Fields {
		switch f.Kind {
		case Categorical:
			if len(f.Options) > 0 {
				rec[f.Name] = f.Options[0]
			}
		case Numeric:
			rec[f.Name] = f.Default
		}
	}
	return rec
}

// ValidateSchema checks a schema before it is exposed as a form.
func ValidateSchema(schema Schema) error {
	if len(schema.Fields) == 0 {
		return fmt.Errorf("schema cannot be empty, must contain at least one field")
	}
	if len(schema.Fields) > maxFields {
		return fmt.Errorf("schema contains %d fields, maximum allowed is %d", len(schema.Fields), maxFields)
	}

	seen := make(map[string]bool, len(schema.Fields))
	for _, f := range schema.Fields {
		if err := validateIdentifier(f.Name); err != nil {
			return fmt.Errorf("invalid field name %q: %w", f.Name, err)
		}
		if seen[f.Name] {
			return fmt.Errorf("field %q is declared more than once", f.Name)
		}
		seen[f.Name] = true

		switch f.Kind {
		case Categorical:
			if err := validateOptions(f); err != nil {
				return err
			}
		case Numeric:
			if err := validateRange(f); err != nil {
				return err
			}
		default:
			return fmt.Errorf("field %q has invalid kind %q (must be one of: categorical, numeric)", f.Name, f.Kind)
		}
	}

	return nil
}

func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(name))
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match pattern %s", identifierPattern.String())
	}
	return nil
}

func validateOptions(f Field) error {
	if len(f.Options) == 0 {
		return fmt.Errorf("categorical field %q must declare at least one option", f.Name)
	}
	seen := make(map[string]bool, len(f.Options))
	for _, opt := range f.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("categorical field %q has an empty option", f.Name)
		}
		if seen[opt] {
			return fmt.Errorf("categorical field %q lists option %q twice", f.Name, opt)
		}
		seen[opt] = true
	}
	return nil
}

func validateRange(f Field) error {
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("numeric field %q has min %v greater than max %v", f.Name, *f.Min, *f.Max)
	}
	if f.Min != nil && f.Default < *f.Min {
		return fmt.Errorf("numeric field %q default %v is below min %v", f.Name, f.Default, *f.Min)
	}
	if f.Max != nil && f.Default > *f.Max {
		return fmt.Errorf("numeric field %q default %v is above max %v", f.Name, f.Default, *f.Max)
	}
	if f.Step < 0 {
		return fmt.Errorf("numeric field %q has negative step %v", f.Name, f.Step)
	}
	return nil
}

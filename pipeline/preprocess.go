package pipeline

import (
	"fmt"
	"math"

	"github.com/liamcoop/termdeposit/customer"
)

// Preprocessor is the first pipeline stage. It is immutable after
// construction and safe for concurrent use.
type Preprocessor struct {
	numeric     []NumericStep
	categorical []CategoricalStep
	derived     []*derivedFeature

	// catIndex maps input name -> category -> output column.
	catIndex map[string]map[string]int
	names    []string
	schema   customer.Schema
}

func newPreprocessor(spec PreprocessSpec) (*Preprocessor, error) {
	p := &Preprocessor{
		numeric:     spec.Numeric,
		categorical: spec.Categorical,
		catIndex:    make(map[string]map[string]int, len(spec.Categorical)),
	}

	for _, step := range spec.Numeric {
		p.names = append(p.names, "num__"+step.Name)
	}
	for _, step := range spec.Categorical {
		idx := make(map[string]int, len(step.Categories))
		for _, c := range step.Categories {
			idx[c] = len(p.names)
			p.names = append(p.names, "cat__"+step.Name+"_"+c)
		}
		p.catIndex[step.Name] = idx
	}

	if len(spec.Derived) > 0 {
		env, err := newRecordEnv()
		if err != nil {
			return nil, err
		}
		for _, step := range spec.Derived {
			d, err := compileDerived(env, step)
			if err != nil {
				return nil, err
			}
			p.derived = append(p.derived, d)
			p.names = append(p.names, "der__"+step.Name)
		}
	}

	schema, err := buildSchema(spec)
	if err != nil {
		return nil, err
	}
	if err := customer.ValidateSchema(schema); err != nil {
		return nil, fmt.Errorf("form surface: %w", err)
	}
	p.schema = schema

	seen := make(map[string]bool, len(p.names))
	for _, n := range p.names {
		if seen[n] {
			return nil, fmt.Errorf("duplicate output column %q", n)
		}
		seen[n] = true
	}

	return p, nil
}

// buildSchema derives the form surface from the preprocessing stage, which
// keeps the presented fields identical to what Transform expects.
func buildSchema(spec PreprocessSpec) (customer.Schema, error) {
	byName := make(map[string]customer.Field, len(spec.Numeric)+len(spec.Categorical))
	var natural []string

	for _, step := range spec.Numeric {
		byName[step.Name] = customer.Field{
			Name:    step.Name,
			Label:   step.Label,
			Kind:    customer.Numeric,
			Min:     step.Form.Min,
			Max:     step.Form.Max,
			Default: step.Form.Default,
			Step:    step.Form.Step,
			Integer: step.Form.Integer,
		}
		natural = append(natural, step.Name)
	}
	for _, step := range spec.Categorical {
		byName[step.Name] = customer.Field{
			Name:    step.Name,
			Label:   step.Label,
			Kind:    customer.Categorical,
			Options: append([]string(nil), step.Categories...),
		}
		natural = append(natural, step.Name)
	}

	order := spec.Order
	if len(order) == 0 {
		order = natural
	}
	if len(order) != len(byName) {
		return customer.Schema{}, fmt.Errorf("order lists %d inputs, preprocessing declares %d", len(order), len(byName))
	}

	schema := customer.Schema{Fields: make([]customer.Field, 0, len(order))}
	for _, name := range order {
		f, ok := byName[name]
		if !ok {
			return customer.Schema{}, fmt.Errorf("order references unknown input %q", name)
		}
		schema.Fields = append(schema.Fields, f)
		delete(byName, name)
	}
	return schema, nil
}

// FeatureNames returns the output column names in vector order.
func (p *Preprocessor) FeatureNames() []string {
	return append([]string(nil), p.names...)
}

// Schema returns the form surface matching this stage.
func (p *Preprocessor) Schema() customer.Schema {
	return p.schema
}

// Transform maps a record onto the feature vector. Any field the stage cannot
// consume yields a *ModelInputError.
func (p *Preprocessor) Transform(rec customer.Record) ([]float64, error) {
	out := make([]float64, len(p.names))
	col := 0

	for _, step := range p.numeric {
		raw, ok := rec[step.Name]
		if !ok {
			return nil, &ModelInputError{Field: step.Name, Reason: "required field is missing"}
		}
		v, err := rec.Float(step.Name)
		if err != nil {
			return nil, &ModelInputError{Field: step.Name, Value: raw, Reason: "expected a numeric value"}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &ModelInputError{Field: step.Name, Value: raw, Reason: "expected a finite value"}
		}
		scale := step.Scale
		if scale == 0 {
			scale = 1
		}
		out[col] = (v - step.Mean) / scale
		col++
	}

	for _, step := range p.categorical {
		raw, ok := rec[step.Name]
		if !ok {
			return nil, &ModelInputError{Field: step.Name, Reason: "required field is missing"}
		}
		s, ok := rec.String(step.Name)
		if !ok {
			return nil, &ModelInputError{Field: step.Name, Value: raw, Reason: "expected a categorical string value"}
		}
		idx, ok := p.catIndex[step.Name][s]
		if !ok {
			return nil, &ModelInputError{Field: step.Name, Value: s, Reason: fmt.Sprintf("unknown category, expected one of %v", step.Categories)}
		}
		out[idx] = 1
		col += len(step.Categories)
	}

	for _, d := range p.derived {
		v, err := d.eval(rec)
		if err != nil {
			return nil, err
		}
		out[col] = v
		col++
	}

	return out, nil
}

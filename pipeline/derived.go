package pipeline

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/termdeposit/customer"
)

// costLimit bounds the work any single expression may do per evaluation.
const costLimit = 1000000

// derivedFeature is a compiled DerivedStep.
type derivedFeature struct {
	name       string
	expression string
	prog       cel.Program
}

// newRecordEnv creates the CEL environment shared by derived features and
// decision policies. The raw record is exposed as a dynamic map because field
// names such as "emp.var.rate" are not valid CEL identifiers.
func newRecordEnv(extra ...cel.EnvOption) (*cel.Env, error) {
	opts := append([]cel.EnvOption{
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	}, extra...)

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

func compileProgram(env *cel.Env, expression string) (*cel.Ast, cel.Program, error) {
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, nil, fmt.Errorf("program creation error: %w", err)
	}
	return ast, prog, nil
}

func compileDerived(env *cel.Env, step DerivedStep) (*derivedFeature, error) {
	if step.Expression == "" {
		return nil, fmt.Errorf("derived feature %q has an empty expression", step.Name)
	}
	_, prog, err := compileProgram(env, step.Expression)
	if err != nil {
		return nil, fmt.Errorf("derived feature %q: %w", step.Name, err)
	}
	return &derivedFeature{name: step.Name, expression: step.Expression, prog: prog}, nil
}

// eval computes the column value for one record.
func (d *derivedFeature) eval(rec customer.Record) (float64, error) {
	out, _, err := d.prog.Eval(map[string]any{"record": map[string]any(rec)})
	if err != nil {
		return 0, &ModelInputError{Field: d.name, Reason: fmt.Sprintf("derived feature evaluation failed: %v", err)}
	}

	switch v := out.Value().(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, &ModelInputError{Field: d.name, Value: v, Reason: "derived feature must evaluate to bool or number"}
	}
}

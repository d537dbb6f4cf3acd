package pipeline

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/termdeposit/customer"
)

// DefaultThreshold applies when neither configuration nor the artifact names one.
const DefaultThreshold = 0.5

// DefaultPolicyExpression labels a record as subscribing when the
// probability is strictly above the threshold. A tie is not a subscription.
const DefaultPolicyExpression = "probability > threshold"

// DecisionPolicy turns a probability into a binary label. The expression is
// CEL over `probability` (double), `threshold` (double) and `record` (map).
type DecisionPolicy struct {
	expression string
	threshold  float64
	prog       cel.Program
}

// NewDecisionPolicy compiles a policy. An empty expression selects
// DefaultPolicyExpression. The expression must type-check to bool.
func NewDecisionPolicy(expression string, threshold float64) (*DecisionPolicy, error) {
	if expression == "" {
		expression = DefaultPolicyExpression
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold %v outside [0,1]", threshold)
	}

	env, err := newRecordEnv(
		cel.Variable("probability", cel.DoubleType),
		cel.Variable("threshold", cel.DoubleType),
	)
	if err != nil {
		return nil, err
	}

	ast, prog, err := compileProgram(env, expression)
	if err != nil {
		return nil, fmt.Errorf("decision policy: %w", err)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("decision policy must evaluate to bool, got %s", ast.OutputType())
	}

	return &DecisionPolicy{expression: expression, threshold: threshold, prog: prog}, nil
}

// Expression returns the policy source.
func (d *DecisionPolicy) Expression() string { return d.expression }

// Threshold returns the threshold bound into the policy.
func (d *DecisionPolicy) Threshold() float64 { return d.threshold }

// Decide evaluates the policy for one prediction.
func (d *DecisionPolicy) Decide(probability float64, rec customer.Record) (bool, error) {
	out, _, err := d.prog.Eval(map[string]any{
		"probability": probability,
		"threshold":   d.threshold,
		"record":      map[string]any(rec),
	})
	if err != nil {
		return false, fmt.Errorf("decision policy evaluation failed: %w", err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("decision policy returned %T, want bool", out.Value())
	}
	return matched, nil
}

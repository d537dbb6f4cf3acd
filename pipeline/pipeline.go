package pipeline

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/liamcoop/termdeposit/customer"
)

// Prediction is the outcome of running one record through the pipeline.
type Prediction struct {
	ID          string    `json:"id"`
	Label       int       `json:"label"`
	Probability float64   `json:"probability"`
	Threshold   float64   `json:"threshold"`
	Features    []float64 `json:"-"`
}

// Subscribed reports whether the label is the positive class.
func (p *Prediction) Subscribed() bool { return p.Label == 1 }

// Pipeline chains the preprocessing and classifier stages with a decision
// policy. It is loaded once and shared read-only by every request.
type Pipeline struct {
	name    string
	version string
	pre     *Preprocessor
	clf     Classifier
	policy  *DecisionPolicy
}

type options struct {
	threshold *float64
	policy    string
}

// Option adjusts how a pipeline is assembled.
type Option func(*options)

// WithThreshold overrides the artifact's threshold.
func WithThreshold(t float64) Option {
	return func(o *options) { o.threshold = &t }
}

// WithPolicy replaces the default threshold comparison with a CEL expression.
func WithPolicy(expression string) Option {
	return func(o *options) { o.policy = expression }
}

// Load reads and compiles the artifact at path.
func Load(path string, opts ...Option) (*Pipeline, error) {
	a, err := ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	return New(a, opts...)
}

// New compiles a decoded artifact. Threshold precedence is WithThreshold,
// then the artifact's own threshold, then DefaultThreshold.
func New(a *Artifact, opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	pre, err := newPreprocessor(a.Pre)
	if err != nil {
		return nil, fmt.Errorf("%w %s: preprocessing: %w", ErrArtifact, a.Name, err)
	}

	clf, err := newClassifier(a.Clf, pre.names)
	if err != nil {
		return nil, fmt.Errorf("%w %s: classifier: %w", ErrArtifact, a.Name, err)
	}

	threshold := DefaultThreshold
	if a.Threshold != nil {
		threshold = *a.Threshold
	}
	if o.threshold != nil {
		threshold = *o.threshold
	}

	policy, err := NewDecisionPolicy(o.policy, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrArtifact, a.Name, err)
	}

	return &Pipeline{
		name:    a.Name,
		version: a.Version,
		pre:     pre,
		clf:     clf,
		policy:  policy,
	}, nil
}

func (p *Pipeline) Name() string { return p.name }
func (p *Pipeline) Version() string { return p.version }
func (p *Pipeline) Schema() customer.Schema { return p.pre.Schema() }
func (p *Pipeline) FeatureNames() []string { return p.pre.FeatureNames() }
func (p *Pipeline) Classifier() Classifier { return p.clf }
func (p *Pipeline) Policy() *DecisionPolicy { return p.policy }

// Transform runs the preprocessing stage only.
func (p *Pipeline) Transform(rec customer.Record) ([]float64, error) {
	return p.pre.Transform(rec)
}

// PredictProba returns P(subscribe) for one record.
func (p *Pipeline) PredictProba(rec customer.Record) (float64, error) {
	x, err := p.pre.Transform(rec)
	if err != nil {
		return 0, err
	}
	return p.probability(x)
}

func (p *Pipeline) probability(x []float64) (float64, error) {
	prob := p.clf.PredictProba(x)
	if math.IsNaN(prob) || math.IsInf(prob, 0) {
		return 0, ErrNonFiniteOutput
	}
	return math.Min(1, math.Max(0, prob)), nil
}

// Predict runs the whole pipeline and applies the decision policy.
func (p *Pipeline) Predict(rec customer.Record) (*Prediction, error) {
	x, err := p.pre.Transform(rec)
	if err != nil {
		return nil, err
	}

	prob, err := p.probability(x)
	if err != nil {
		return nil, err
	}

	subscribed, err := p.policy.Decide(prob, rec)
	if err != nil {
		return nil, err
	}

	label := 0
	if subscribed {
		label = 1
	}

	return &Prediction{
		ID:          uuid.NewString(),
		Label:       label,
		Probability: prob,
		Threshold:   p.policy.Threshold(),
		Features:    x,
	}, nil
}

package explain

import (
	"context"
	"errors"
	"fmt"

	"github.com/liamcoop/termdeposit/internal/logger"
	"github.com/liamcoop/termdeposit/internal/metrics"
)

// Stage names one step of the rendering fallback chain.
type Stage string

const (
	StageInteractive Stage = "interactive"
	StageStatic      Stage = "static"
	StageTable       Stage = "table"
)

// ErrStageDisabled is returned by renderers switched off in configuration.
var ErrStageDisabled = errors.New("render stage disabled")

// Table lists the strongest contributors in each direction.
type Table struct {
	Positive []Contribution `json:"positive"`
	Negative []Contribution `json:"negative"`
}

// Rendering is the output of whichever stage succeeded.
type Rendering struct {
	Stage Stage  `json:"stage"`
	HTML  string `json:"html,omitempty"`
	PNG   []byte `json:"png,omitempty"`
	Table *Table `json:"table,omitempty"`
}

// Renderer presents an attribution set. Failures stay inside the chain.
type Renderer interface {
	Stage() Stage
	Render(ctx context.Context, set *AttributionSet) (*Rendering, error)
}

// StageFailure records why a stage was skipped.
type StageFailure struct {
	Stage Stage  `json:"stage"`
	Err   string `json:"error"`
}

// Result is everything the caller needs to display an explanation. It is
// never accompanied by an error: total failure is reported via Unavailable.
type Result struct {
	Attributions *AttributionSet `json:"attributions,omitempty"`
	Reference    ReferenceKind   `json:"reference"`
	Rendering    *Rendering      `json:"rendering,omitempty"`
	Failures     []StageFailure  `json:"failures,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
	Unavailable  bool            `json:"unavailable"`
	Reason       string          `json:"reason,omitempty"`
}

// Config tunes attribution and rendering.
type Config struct {
	Samples     int
	Seed        uint64
	TopN        int
	MaxDisplay  int
	Interactive bool
	Static      bool
	// Fallback is the reference used when no background rows are available:
	// ReferenceInput or ReferenceZeros.
	Fallback ReferenceKind
}

// DefaultConfig mirrors the settings the service ships with.
func DefaultConfig() Config {
	return Config{
		Samples:     64,
		Seed:        42,
		TopN:        10,
		MaxDisplay:  12,
		Interactive: true,
		Static:      true,
		Fallback:    ReferenceInput,
	}
}

// Explainer computes and renders attributions for one model. It holds no
// per-request state.
type Explainer struct {
	model      ModelFunc
	names      []string
	background Background
	renderers  []Renderer
	config     Config
}

// Option adjusts an Explainer.
type Option func(*Explainer)

// WithRenderers replaces the default chain.
func WithRenderers(renderers ...Renderer) Option {
	return func(e *Explainer) { e.renderers = renderers }
}

// New creates an explainer for a model over the named feature columns.
func New(model ModelFunc, names []string, bg Background, config Config, opts ...Option) *Explainer {
	if bg == nil {
		bg = NoBackground{}
	}
	if config.Fallback == "" {
		config.Fallback = ReferenceInput
	}
	e := &Explainer{
		model:      model,
		names:      append([]string(nil), names...),
		background: bg,
		config:     config,
	}
	e.renderers = []Renderer{
		&InteractiveRenderer{Enabled: config.Interactive, MaxDisplay: config.MaxDisplay},
		&StaticRenderer{Enabled: config.Static, MaxDisplay: config.MaxDisplay},
		&TableRenderer{TopN: config.TopN},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Explain attributes the model output for x and renders it through the
// fallback chain.
func (e *Explainer) Explain(ctx context.Context, x []float64) *Result {
	reference, kind, warnings := resolveReference(ctx, e.background, x, len(e.names), e.config.Fallback)
	res := &Result{Reference: kind, Warnings: warnings}

	set, err := shapley(e.model, e.names, x, reference, e.config.Samples, e.config.Seed)
	if err != nil {
		logger.Warn("attribution failed", "error", err)
		metrics.ObserveExplanation("attribution", "failed")
		res.Unavailable = true
		res.Reason = fmt.Sprintf("attribution could not be computed: %v", err)
		return res
	}
	res.Attributions = set

	for _, r := range e.renderers {
		rendering, err := renderSafely(ctx, r, set)
		if err != nil {
			metrics.ObserveExplanation(string(r.Stage()), "failed")
			logger.Debug("render stage failed", "stage", r.Stage(), "error", err)
			res.Failures = append(res.Failures, StageFailure{Stage: r.Stage(), Err: err.Error()})
			continue
		}
		metrics.ObserveExplanation(string(r.Stage()), "rendered")
		res.Rendering = rendering
		return res
	}

	res.Unavailable = true
	res.Reason = "no render stage produced output"
	return res
}

func renderSafely(ctx context.Context, r Renderer, set *AttributionSet) (rendering *Rendering, err error) {
	defer func() {
		if p := recover(); p != nil {
			rendering = nil
			err = fmt.Errorf("%s renderer panicked: %v", r.Stage(), p)
		}
	}()

	rendering, err = r.Render(ctx, set)
	if err == nil && rendering == nil {
		err = fmt.Errorf("%s renderer returned no output", r.Stage())
	}
	return rendering, err
}

// TableRenderer lists the top contributors. It only fails without data.
type TableRenderer struct {
	TopN int
}

func (t *TableRenderer) Stage() Stage { return StageTable }

func (t *TableRenderer) Render(_ context.Context, set *AttributionSet) (*Rendering, error) {
	if set == nil {
		return nil, errors.New("no attributions to tabulate")
	}
	n := t.TopN
	if n <= 0 {
		n = 10
	}
	return &Rendering{
		Stage: StageTable,
		Table: &Table{
			Positive: set.TopPositive(n),
			Negative: set.TopNegative(n),
		},
	}, nil
}

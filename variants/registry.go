// Package variants keeps the set of form variants served by the process.
// Each variant owns its pipeline, decision policy and explainer.
package variants

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/liamcoop/termdeposit/explain"
	"github.com/liamcoop/termdeposit/internal/config"
	"github.com/liamcoop/termdeposit/internal/logger"
	"github.com/liamcoop/termdeposit/pipeline"
)

var validID = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Variant is one loaded form variant.
type Variant struct {
	ID        string
	Title     string
	Pipeline  *pipeline.Pipeline
	Explainer *explain.Explainer
}

// BackgroundFunc chooses the explanation background for a variant once its
// pipeline is loaded. Returning nil means no background.
type BackgroundFunc func(spec config.VariantSpec, p *pipeline.Pipeline) explain.Background

// Registry maps variant IDs to loaded variants.
type Registry struct {
	variants  map[string]*Variant
	defaultID string
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{variants: make(map[string]*Variant)}
}

// Load builds every variant in vf. Any failure aborts the whole load.
func Load(vf *config.VariantsFile, threshold *float64, policy string, explainCfg explain.Config, background BackgroundFunc) (*Registry, error) {
	r := NewRegistry()
	for _, spec := range vf.Variants {
		if err := r.Create(spec, threshold, policy, explainCfg, background); err != nil {
			return nil, fmt.Errorf("failed to initialize variant %s: %w", spec.ID, err)
		}
	}

	if _, ok := r.variants[vf.Default]; !ok {
		return nil, fmt.Errorf("default variant %q is not declared", vf.Default)
	}
	r.defaultID = vf.Default

	logger.Info("variants loaded", "count", len(r.variants), "default", r.defaultID)
	return r, nil
}

// Create loads one variant and adds it to the registry. threshold and
// policy apply when the variant does not set its own.
func (r *Registry) Create(spec config.VariantSpec, threshold *float64, policy string, explainCfg explain.Config, background BackgroundFunc) error {
	if err := ValidateID(spec.ID); err != nil {
		return err
	}

	var opts []pipeline.Option
	switch {
	case spec.Threshold != nil:
		opts = append(opts, pipeline.WithThreshold(*spec.Threshold))
	case threshold != nil:
		opts = append(opts, pipeline.WithThreshold(*threshold))
	}
	switch {
	case spec.Policy != "":
		opts = append(opts, pipeline.WithPolicy(spec.Policy))
	case policy != "":
		opts = append(opts, pipeline.WithPolicy(policy))
	}

	p, err := pipeline.Load(spec.ModelPath, opts...)
	if err != nil {
		return err
	}

	var bg explain.Background
	if background != nil {
		bg = background(spec, p)
	}
	ex := explain.New(p.Classifier().PredictProba, p.FeatureNames(), bg, explainCfg)

	title := spec.Title
	if title == "" {
		title = p.Name()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.variants[spec.ID]; exists {
		return fmt.Errorf("variant %s is declared more than once", spec.ID)
	}
	r.variants[spec.ID] = &Variant{
		ID:        spec.ID,
		Title:     title,
		Pipeline:  p,
		Explainer: ex,
	}
	if r.defaultID == "" {
		r.defaultID = spec.ID
	}

	logger.Info("variant loaded",
		"variant", spec.ID,
		"model", p.Name(),
		"classifier", p.Classifier().Kind(),
		"fields", len(p.Schema().Fields),
		"threshold", p.Policy().Threshold())
	return nil
}

// Get retrieves a variant by ID.
func (r *Registry) Get(id string) (*Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, exists := r.variants[id]
	if !exists {
		return nil, fmt.Errorf("variant %s not found", id)
	}
	return v, nil
}

// Default returns the variant served at the root path.
func (r *Registry) Default() *Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.variants[r.defaultID]
}

// List returns all variants sorted by ID.
func (r *Registry) List() []*Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Variant, 0, len(r.variants))
	for _, v := range r.variants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len reports how many variants are loaded.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.variants)
}

// ValidateID checks a variant ID is usable as a URL path segment.
func ValidateID(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("variant id cannot be empty")
	}
	if len(id) > 64 {
		return fmt.Errorf("variant id length %d exceeds maximum of 64 characters", len(id))
	}
	if !validID.MatchString(id) {
		return fmt.Errorf("variant id %q must match %s", id, validID)
	}
	return nil
}

// Package casebook holds the pre-computed illustrative cases shown next to a
// live prediction, and picks the one closest to a given probability.
package casebook

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed cases.yaml
var embeddedCases []byte

// ErrImageMissing is returned when a case has no reference image on disk.
var ErrImageMissing = errors.New("reference image unavailable")

// Case is one hand-curated example with its stored explanation.
type Case struct {
	ID          string             `yaml:"id" json:"id"`
	Title       string             `yaml:"title" json:"title"`
	Probability float64            `yaml:"probability" json:"probability"`
	Positive    map[string]float64 `yaml:"positive" json:"positive"`
	Negative    map[string]float64 `yaml:"negative" json:"negative"`
	Image       string             `yaml:"image,omitempty" json:"image,omitempty"`
}

// Entry is one row of a case's attribution table.
type Entry struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// TopPositive lists the positive attributions, largest first.
func (c Case) TopPositive() []Entry {
	return sortedEntries(c.Positive, func(a, b float64) bool { return a > b })
}

// TopNegative lists the negative attributions, most negative first.
func (c Case) TopNegative() []Entry {
	return sortedEntries(c.Negative, func(a, b float64) bool { return a < b })
}

func sortedEntries(m map[string]float64, less func(a, b float64) bool) []Entry {
	out := make([]Entry, 0, len(m))
	for f, v := range m {
		out = append(out, Entry{Feature: f, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return less(out[i].Value, out[j].Value)
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// Book is an immutable, non-empty, ordered set of cases.
type Book struct {
	cases    []Case
	imageDir string
}

type document struct {
	Cases []Case `yaml:"cases"`
}

// Default returns the book compiled into the binary.
func Default(imageDir string) *Book {
	b, err := Parse(embeddedCases, imageDir)
	if err != nil {
		panic(fmt.Sprintf("embedded cases.yaml is invalid: %v", err))
	}
	return b
}

// Parse builds a book from YAML. A book must hold at least one case and
// every probability must lie in [0,1].
func Parse(data []byte, imageDir string) (*Book, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse cases: %w", err)
	}
	if len(doc.Cases) == 0 {
		return nil, errors.New("case book must contain at least one case")
	}

	seen := make(map[string]bool, len(doc.Cases))
	for _, c := range doc.Cases {
		if c.ID == "" {
			return nil, errors.New("case without id")
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("case %q is declared more than once", c.ID)
		}
		seen[c.ID] = true
		if c.Probability < 0 || c.Probability > 1 || math.IsNaN(c.Probability) {
			return nil, fmt.Errorf("case %q probability %v outside [0,1]", c.ID, c.Probability)
		}
	}

	return &Book{cases: doc.Cases, imageDir: imageDir}, nil
}

// Cases returns the cases in definition order.
func (b *Book) Cases() []Case {
	return append([]Case(nil), b.cases...)
}

// Get looks a case up by ID.
func (b *Book) Get(id string) (Case, bool) {
	for _, c := range b.cases {
		if c.ID == id {
			return c, true
		}
	}
	return Case{}, false
}

// Nearest returns the case whose stored probability is closest to p. On a
// tie the case defined first wins.
func (b *Book) Nearest(p float64) Case {
	best := b.cases[0]
	bestDiff := math.Abs(p - best.Probability)
	for _, c := range b.cases[1:] {
		if d := math.Abs(p - c.Probability); d < bestDiff {
			best, bestDiff = c, d
		}
	}
	return best
}

// ImagePath returns the on-disk path of a case's reference image, or
// ErrImageMissing when the case has none or the file is absent.
func (b *Book) ImagePath(c Case) (string, error) {
	if c.Image == "" {
		return "", fmt.Errorf("case %s: %w", c.ID, ErrImageMissing)
	}
	path := filepath.Join(b.imageDir, filepath.Base(c.Image))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("case %s: %w", c.ID, ErrImageMissing)
	}
	return path, nil
}

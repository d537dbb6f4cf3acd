package explain

import (
	"math"
	"sort"
)

// Contribution is one feature's signed share of the prediction.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// AttributionSet holds per-feature contributions for a single prediction.
// BaseValue plus the sum of all values equals Output.
type AttributionSet struct {
	Contributions []Contribution `json:"contributions"`
	BaseValue     float64        `json:"baseValue"`
	Output        float64        `json:"output"`
}

// Map returns the contributions keyed by feature name.
func (a *AttributionSet) Map() map[string]float64 {
	m := make(map[string]float64, len(a.Contributions))
	for _, c := range a.Contributions {
		m[c.Feature] = c.Value
	}
	return m
}

// Sum adds up every contribution.
func (a *AttributionSet) Sum() float64 {
	var s float64
	for _, c := range a.Contributions {
		s += c.Value
	}
	return s
}

// Sorted returns the contributions from most positive to most negative.
// Equal values keep feature-name order.
func (a *AttributionSet) Sorted() []Contribution {
	out := append([]Contribution(nil), a.Contributions...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// ByMagnitude returns the contributions ordered by absolute value, largest first.
func (a *AttributionSet) ByMagnitude() []Contribution {
	out := append([]Contribution(nil), a.Contributions...)
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Value), math.Abs(out[j].Value)
		if ai != aj {
			return ai > aj
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

// TopPositive returns up to n contributions that pushed the probability up,
// largest first.
func (a *AttributionSet) TopPositive(n int) []Contribution {
	var out []Contribution
	for _, c := range a.Sorted() {
		if len(out) == n || c.Value <= 0 {
			break
		}
		out = append(out, c)
	}
	return out
}

// TopNegative returns up to n contributions that pushed the probability down,
// most negative first.
func (a *AttributionSet) TopNegative(n int) []Contribution {
	sorted := a.Sorted()
	var out []Contribution
	for i := len(sorted) - 1; i >= 0 && len(out) < n; i-- {
		if sorted[i].Value >= 0 {
			break
		}
		out = append(out, sorted[i])
	}
	return out
}

// NonZero reports whether any feature moved the prediction.
func (a *AttributionSet) NonZero() bool {
	for _, c := range a.Contributions {
		if c.Value != 0 {
			return true
		}
	}
	return false
}

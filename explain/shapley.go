package explain

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// ModelFunc scores one preprocessed feature vector.
type ModelFunc func(x []float64) float64

var errNoReference = errors.New("reference sample is empty")

// shapley estimates Shapley values for x by permutation sampling.
//
// Each sample walks a random feature ordering, switching features from a
// background row to x one at a time and crediting each feature with the
// change in model output. The marginal changes of one walk telescope to
// f(x) - f(b), so BaseValue + sum(values) == f(x) holds exactly whatever the
// sample count. Features whose value already matches the background row are
// skipped without a model call.
func shapley(f ModelFunc, names []string, x []float64, reference [][]float64, samples int, seed uint64) (set *AttributionSet, err error) {
	if len(reference) == 0 {
		return nil, errNoReference
	}
	if len(names) != len(x) {
		return nil, fmt.Errorf("feature name count %d does not match vector width %d", len(names), len(x))
	}
	if samples < 1 {
		samples = 1
	}

	defer func() {
		if r := recover(); r != nil {
			set = nil
			err = fmt.Errorf("model panicked during attribution: %v", r)
		}
	}()

	eval := func(z []float64) (float64, error) {
		v := f(z)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("model returned non-finite output %v", v)
		}
		return v, nil
	}

	out, err := eval(x)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	phi := make([]float64, len(x))
	z := make([]float64, len(x))
	var base float64

	for s := 0; s < samples; s++ {
		b := reference[s%len(reference)]
		if len(b) != len(x) {
			return nil, fmt.Errorf("reference row width %d does not match vector width %d", len(b), len(x))
		}
		copy(z, b)

		prev, err := eval(z)
		if err != nil {
			return nil, err
		}
		base += prev

		for _, j := range rng.Perm(len(x)) {
			if z[j] == x[j] {
				continue
			}
			z[j] = x[j]
			cur, err := eval(z)
			if err != nil {
				return nil, err
			}
			phi[j] += cur - prev
			prev = cur
		}
	}

	n := float64(samples)
	set = &AttributionSet{
		Contributions: make([]Contribution, len(x)),
		BaseValue:     base / n,
		Output:        out,
	}
	for j, name := range names {
		set.Contributions[j] = Contribution{Feature: name, Value: phi[j] / n}
	}
	return set, nil
}

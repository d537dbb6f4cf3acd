package explain

import (
	"math"
	"strings"
	"testing"
)

func linear(w []float64) ModelFunc {
	return func(x []float64) float64 {
		var s float64
		for i, v := range x {
			s += w[i] * v
		}
		return s
	}
}

func sigmoidModel(x []float64) float64 {
	z := 0.8*x[0] - 1.5*x[1] + 0.3*x[0]*x[2]
	return 1 / (1 + math.Exp(-z))
}

func TestShapley_LinearModelIsExact(t *testing.T) {
	w := []float64{2, -1, 0.5}
	x := []float64{1, 3, -2}
	b := []float64{0, 1, 0}

	set, err := shapley(linear(w), []string{"a", "b", "c"}, x, [][]float64{b}, 16, 1)
	if err != nil {
		t.Fatalf("shapley() failed: %v", err)
	}

	for i, c := range set.Contributions {
		want := w[i] * (x[i] - b[i])
		if math.Abs(c.Value-want) > 1e-12 {
			t.Errorf("%s = %v, want %v", c.Feature, c.Value, want)
		}
	}
}

func TestShapley_Efficiency(t *testing.T) {
	x := []float64{1.2, -0.4, 2}
	reference := [][]float64{{0, 0, 0}, {1, 1, 1}, {-1, 0.5, 0}}

	for _, samples := range []int{1, 3, 50} {
		set, err := shapley(sigmoidModel, []string{"a", "b", "c"}, x, reference, samples, 7)
		if err != nil {
			t.Fatalf("shapley() failed: %v", err)
		}
		if got := set.BaseValue + set.Sum(); math.Abs(got-set.Output) > 1e-9 {
			t.Errorf("samples=%d: base %v + sum %v = %v, want output %v", samples, set.BaseValue, set.Sum(), got, set.Output)
		}
		if set.Output != sigmoidModel(x) {
			t.Errorf("Output = %v, want f(x) = %v", set.Output, sigmoidModel(x))
		}
	}
}

func TestShapley_Deterministic(t *testing.T) {
	x := []float64{1.2, -0.4, 2}
	reference := [][]float64{{0, 0, 0}, {1, 1, 1}}

	a, _ := shapley(sigmoidModel, []string{"a", "b", "c"}, x, reference, 20, 42)
	b, _ := shapley(sigmoidModel, []string{"a", "b", "c"}, x, reference, 20, 42)
	for i := range a.Contributions {
		if a.Contributions[i] != b.Contributions[i] {
			t.Fatalf("same seed gave different attributions: %v vs %v", a.Contributions, b.Contributions)
		}
	}
}

func TestShapley_InputReferenceGivesZeros(t *testing.T) {
	x := []float64{1, 2, 3}
	calls := 0
	f := func(z []float64) float64 {
		calls++
		return linear([]float64{1, 1, 1})(z)
	}

	set, err := shapley(f, []string{"a", "b", "c"}, x, [][]float64{x}, 10, 1)
	if err != nil {
		t.Fatalf("shapley() failed: %v", err)
	}
	if set.NonZero() {
		t.Errorf("attributions against the input itself should be zero: %v", set.Contributions)
	}
	// one call for f(x), one per sample for the reference row
	if calls != 11 {
		t.Errorf("model called %d times, want 11", calls)
	}
}

func TestShapley_Errors(t *testing.T) {
	names := []string{"a", "b"}
	x := []float64{1, 2}

	testCases := []struct {
		name      string
		f         ModelFunc
		names     []string
		reference [][]float64
		wantErr   string
	}{
		{"no reference", linear([]float64{1, 1}), names, nil, "empty"},
		{"name mismatch", linear([]float64{1, 1}), []string{"a"}, [][]float64{{0, 0}}, "does not match"},
		{"row width", linear([]float64{1, 1}), names, [][]float64{{0}}, "width"},
		{"nan output", func([]float64) float64 { return math.NaN() }, names, [][]float64{{0, 0}}, "non-finite"},
		{"inf output", func([]float64) float64 { return math.Inf(1) }, names, [][]float64{{0, 0}}, "non-finite"},
		{"panic", func([]float64) float64 { panic("boom") }, names, [][]float64{{0, 0}}, "panicked"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			set, err := shapley(tc.f, tc.names, x, tc.reference, 4, 1)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if set != nil {
				t.Error("set should be nil on error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

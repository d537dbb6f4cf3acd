package explain

import "testing"

func testSet() *AttributionSet {
	return &AttributionSet{
		BaseValue: 0.2,
		Output:    0.5,
		Contributions: []Contribution{
			{Feature: "a", Value: 0.3},
			{Feature: "b", Value: -0.1},
			{Feature: "c", Value: 0},
			{Feature: "d", Value: 0.2},
			{Feature: "e", Value: -0.1},
		},
	}
}

func features(cs []Contribution) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Feature
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTopPositiveAndNegative(t *testing.T) {
	set := testSet()

	testCases := []struct {
		name string
		got  []Contribution
		want []string
	}{
		{"positive", set.TopPositive(10), []string{"a", "d"}},
		{"positive limited", set.TopPositive(1), []string{"a"}},
		{"negative", set.TopNegative(10), []string{"e", "b"}},
		{"negative limited", set.TopNegative(1), []string{"e"}},
		{"zero limit", set.TopPositive(0), nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := features(tc.got); !equal(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestByMagnitude(t *testing.T) {
	got := features(testSet().ByMagnitude())
	want := []string{"a", "d", "b", "e", "c"}
	if !equal(got, want) {
		t.Errorf("ByMagnitude() = %v, want %v", got, want)
	}
}

func TestSumAndMap(t *testing.T) {
	set := testSet()
	if got := set.Sum(); got < 0.2999 || got > 0.3001 {
		t.Errorf("Sum() = %v, want 0.3", got)
	}
	if set.Map()["d"] != 0.2 {
		t.Errorf("Map()[d] = %v", set.Map()["d"])
	}
	if !set.NonZero() {
		t.Error("NonZero() = false")
	}
	if (&AttributionSet{Contributions: []Contribution{{Feature: "x"}}}).NonZero() {
		t.Error("all-zero set reported NonZero")
	}
}

func TestFoldContributions(t *testing.T) {
	folded := foldContributions(testSet(), 3)
	got := features(folded)
	want := []string{"a", "d", "2 other features"}
	if !equal(got, want) {
		t.Fatalf("foldContributions() = %v, want %v", got, want)
	}
	if folded[2].Value != -0.2 {
		t.Errorf("folded negative total = %v, want -0.2", folded[2].Value)
	}
}

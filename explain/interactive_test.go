package explain

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestForceSegments_MeetAtOutput(t *testing.T) {
	set := testSet()
	segs := forceSegments(set, 0)

	if len(segs) != 4 {
		t.Fatalf("got %d segments, want 4 (zero contribution skipped)", len(segs))
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range segs {
		if s.To < s.From {
			t.Errorf("segment %s runs backwards: %v > %v", s.Feature, s.From, s.To)
		}
		if math.Abs((s.To-s.From)-math.Abs(s.Value)) > 1e-12 {
			t.Errorf("segment %s has width %v, want %v", s.Feature, s.To-s.From, math.Abs(s.Value))
		}
		lo = math.Min(lo, s.From)
		hi = math.Max(hi, s.To)
	}

	if math.Abs(lo-0.0) > 1e-12 {
		t.Errorf("leftmost edge = %v, want 0 (output minus positive total)", lo)
	}
	if math.Abs(hi-0.7) > 1e-12 {
		t.Errorf("rightmost edge = %v, want 0.7 (output minus negative total)", hi)
	}
}

func TestForceSegments_FoldedUseNeutralColor(t *testing.T) {
	segs := forceSegments(testSet(), 2)

	var folded int
	for _, s := range segs {
		if strings.HasSuffix(s.Feature, " other features") {
			folded++
			if s.color != colorOther {
				t.Errorf("folded segment %q has color %s", s.Feature, s.color)
			}
		}
	}
	if folded == 0 {
		t.Error("expected folded segments with maxDisplay 2")
	}
}

func TestInteractiveRenderer(t *testing.T) {
	set := &AttributionSet{
		BaseValue: 0.1,
		Output:    0.4,
		Contributions: []Contribution{
			{Feature: `cat__job_<admin>`, Value: 0.3},
		},
	}

	r := &InteractiveRenderer{Enabled: true, MaxDisplay: 10}
	out, err := r.Render(context.Background(), set)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out.Stage != StageInteractive {
		t.Errorf("Stage = %s", out.Stage)
	}
	if strings.Contains(out.HTML, "<admin>") {
		t.Error("feature name is not escaped")
	}
	for _, want := range []string{`<svg`, `class="force-data"`, `f(x) = 0.400`, `base value 0.100`} {
		if !strings.Contains(out.HTML, want) {
			t.Errorf("HTML missing %q", want)
		}
	}

	r.Enabled = false
	if _, err := r.Render(context.Background(), set); err != ErrStageDisabled {
		t.Errorf("disabled Render() error = %v, want ErrStageDisabled", err)
	}
}

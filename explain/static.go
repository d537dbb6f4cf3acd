package explain

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// StaticRenderer draws a PNG bar chart of the largest contributions, ordered
// by magnitude like a waterfall plot.
type StaticRenderer struct {
	Enabled    bool
	MaxDisplay int
}

func (r *StaticRenderer) Stage() Stage { return StageStatic }

func (r *StaticRenderer) Render(_ context.Context, set *AttributionSet) (*Rendering, error) {
	if !r.Enabled {
		return nil, ErrStageDisabled
	}
	if !set.NonZero() {
		return nil, errors.New("every attribution is zero, nothing to chart")
	}

	var bars []chart.Value
	for _, c := range foldContributions(set, r.MaxDisplay) {
		if c.Value == 0 {
			continue
		}
		color := drawing.ColorFromHex(colorPositive[1:])
		if c.Value < 0 {
			color = drawing.ColorFromHex(colorNegative[1:])
		}
		if segmentColor(c, "") == colorOther {
			color = drawing.ColorFromHex(colorOther[1:])
		}
		bars = append(bars, chart.Value{
			Label: c.Feature,
			Value: c.Value,
			Style: chart.Style{FillColor: color, StrokeColor: color, StrokeWidth: 1},
		})
	}

	graph := chart.BarChart{
		Title:        fmt.Sprintf("f(x) = %.3f, base value = %.3f", set.Output, set.BaseValue),
		Background:   chart.Style{Padding: chart.Box{Top: 40, Bottom: 80}},
		Width:        200 + 70*len(bars),
		Height:       480,
		BarWidth:     50,
		BarSpacing:   20,
		UseBaseValue: true,
		BaseValue:    0,
		XAxis:        chart.Style{TextRotationDegrees: 45},
		Bars:         bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render bar chart: %w", err)
	}
	return &Rendering{Stage: StageStatic, PNG: buf.Bytes()}, nil
}

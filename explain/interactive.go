package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/a-h/templ"
)

const (
	forceWidth   = 860.0
	forceHeight  = 120.0
	forceMargin  = 40.0
	forceBarTop  = 40.0
	forceBarSize = 32.0

	colorPositive = "#ff0051"
	colorNegative = "#008bfb"
	colorOther    = "#b0b0b0"
)

// InteractiveRenderer draws a force plot as inline SVG with per-segment
// tooltips and a hover readout.
type InteractiveRenderer struct {
	Enabled    bool
	MaxDisplay int
}

func (r *InteractiveRenderer) Stage() Stage { return StageInteractive }

func (r *InteractiveRenderer) Render(ctx context.Context, set *AttributionSet) (*Rendering, error) {
	if !r.Enabled {
		return nil, ErrStageDisabled
	}

	var b strings.Builder
	if err := ForcePlot(set, r.MaxDisplay).Render(ctx, &b); err != nil {
		return nil, fmt.Errorf("render force plot: %w", err)
	}
	return &Rendering{Stage: StageInteractive, HTML: b.String()}, nil
}

type segment struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	From    float64 `json:"from"`
	To      float64 `json:"to"`
	color   string
}

// foldContributions keeps the maxDisplay-1 largest contributions and folds
// the rest into one entry per sign.
func foldContributions(set *AttributionSet, maxDisplay int) []Contribution {
	ordered := set.ByMagnitude()
	if maxDisplay <= 0 || len(ordered) <= maxDisplay {
		return ordered
	}

	keep := ordered[:maxDisplay-1]
	var pos, neg float64
	var npos, nneg int
	for _, c := range ordered[maxDisplay-1:] {
		switch {
		case c.Value > 0:
			pos += c.Value
			npos++
		case c.Value < 0:
			neg += c.Value
			nneg++
		}
	}

	out := append([]Contribution(nil), keep...)
	if npos > 0 {
		out = append(out, Contribution{Feature: fmt.Sprintf("%d other features", npos), Value: pos})
	}
	if nneg > 0 {
		out = append(out, Contribution{Feature: fmt.Sprintf("%d other features", nneg), Value: neg})
	}
	return out
}

// forceSegments lays positive contributions leftwards from the output and
// negative ones rightwards, so that the red and blue blocks meet at f(x).
func forceSegments(set *AttributionSet, maxDisplay int) []segment {
	shown := foldContributions(set, maxDisplay)
	var segs []segment

	cursor := set.Output
	for _, c := range shown {
		if c.Value <= 0 {
			continue
		}
		segs = append(segs, segment{Feature: c.Feature, Value: c.Value, From: cursor - c.Value, To: cursor, color: segmentColor(c, colorPositive)})
		cursor -= c.Value
	}

	cursor = set.Output
	for _, c := range shown {
		if c.Value >= 0 {
			continue
		}
		segs = append(segs, segment{Feature: c.Feature, Value: c.Value, From: cursor, To: cursor - c.Value, color: segmentColor(c, colorNegative)})
		cursor -= c.Value
	}
	return segs
}

func segmentColor(c Contribution, base string) string {
	if strings.HasSuffix(c.Feature, " other features") {
		return colorOther
	}
	return base
}

// ForcePlot is a templ component rendering the force plot for set.
func ForcePlot(set *AttributionSet, maxDisplay int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		segs := forceSegments(set, maxDisplay)

		lo, hi := math.Min(0, set.BaseValue), math.Max(1, set.BaseValue)
		for _, s := range segs {
			lo = math.Min(lo, s.From)
			hi = math.Max(hi, s.To)
		}
		scale := func(v float64) float64 {
			return forceMargin + (v-lo)/(hi-lo)*(forceWidth-2*forceMargin)
		}

		data, err := json.Marshal(map[string]any{
			"baseValue": set.BaseValue,
			"output":    set.Output,
			"segments":  segs,
		})
		if err != nil {
			return err
		}

		var b strings.Builder
		b.WriteString(`<div class="force-plot">`)
		fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.0f %.0f" width="100%%" role="img" aria-label="Feature attribution force plot">`, forceWidth, forceHeight)

		for _, s := range segs {
			x0, x1 := scale(s.From), scale(s.To)
			fmt.Fprintf(&b, `<rect class="segment" x="%.2f" y="%.0f" width="%.2f" height="%.0f" fill="%s" data-feature="%s" data-value="%.4f"><title>%s: %+.4f</title></rect>`,
				x0, forceBarTop, math.Max(x1-x0, 0.5), forceBarSize, s.color,
				templ.EscapeString(s.Feature), s.Value,
				templ.EscapeString(s.Feature), s.Value)
		}

		axisY := forceBarTop + forceBarSize + 16
		fmt.Fprintf(&b, `<line x1="%.0f" y1="%.0f" x2="%.0f" y2="%.0f" stroke="#333"/>`, forceMargin, axisY, forceWidth-forceMargin, axisY)
		fmt.Fprintf(&b, `<text x="%.2f" y="%.0f" font-size="11" text-anchor="middle">base value %.3f</text>`, scale(set.BaseValue), axisY+16, set.BaseValue)
		fmt.Fprintf(&b, `<line x1="%.2f" y1="%.0f" x2="%.2f" y2="%.0f" stroke="#000" stroke-width="2"/>`, scale(set.Output), forceBarTop-8, scale(set.Output), forceBarTop+forceBarSize+8)
		fmt.Fprintf(&b, `<text x="%.2f" y="%.0f" font-size="13" font-weight="bold" text-anchor="middle">f(x) = %.3f</text>`, scale(set.Output), forceBarTop-14, set.Output)
		b.WriteString(`</svg>`)
		b.WriteString(`<p class="force-readout">Hover a segment to see its contribution.</p>`)
		fmt.Fprintf(&b, `<script type="application/json" class="force-data">%s</script>`, data)
		b.WriteString(forceScript)
		b.WriteString(`</div>`)

		_, err = io.WriteString(w, b.String())
		return err
	})
}

const forceScript = `<script>
(function () {
  var root = document.currentScript.parentElement;
  var readout = root.querySelector(".force-readout");
  root.querySelectorAll("rect.segment").forEach(function (el) {
    el.addEventListener("mouseenter", function () {
      var v = parseFloat(el.dataset.value);
      readout.textContent = el.dataset.feature + ": " + (v >= 0 ? "+" : "") + v.toFixed(4);
      el.setAttribute("opacity", "0.7");
    });
    el.addEventListener("mouseleave", function () { el.setAttribute("opacity", "1"); });
  });
})();
</script>`

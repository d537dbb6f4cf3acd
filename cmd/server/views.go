package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/liamcoop/termdeposit/casebook"
	"github.com/liamcoop/termdeposit/customer"
	"github.com/liamcoop/termdeposit/explain"
	"github.com/liamcoop/termdeposit/pipeline"
	"github.com/liamcoop/termdeposit/variants"
)

// FormView is what the form page needs.
type FormView struct {
	Variant    *variants.Variant
	Variants   []*variants.Variant
	Values     map[string]string
	Error      string
	ErrorField string
}

// ResultView is what the result page needs. Error is set instead of
// Prediction when the pipeline rejected the record.
type ResultView struct {
	Variant     *variants.Variant
	Prediction  *pipeline.Prediction
	Explanation *explain.Result
	Case        *CaseResponse
	Error       string
}

func (s *Server) formView(v *variants.Variant, submitted url.Values, err error) FormView {
	schema := v.Pipeline.Schema()
	values := make(map[string]string, len(schema.Fields))
	for name, val := range schema.Defaults() {
		values[name] = fmt.Sprint(val)
	}
	for name := range submitted {
		values[name] = submitted.Get(name)
	}

	view := FormView{Variant: v, Variants: s.registry.List(), Values: values}
	if err != nil {
		view.Error = err.Error()
		var fe *customer.FormError
		if errors.As(err, &fe) {
			view.ErrorField = fe.Field
		}
	}
	return view
}

func percent(p float64) string {
	return strconv.FormatFloat(p*100, 'f', 2, 64) + "%"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

const pageStyle = `<style>
body{font-family:system-ui,sans-serif;max-width:960px;margin:2rem auto;padding:0 1rem;color:#222}
label{display:block;margin-top:.6rem;font-weight:600}
input,select{padding:.3rem;min-width:16rem}
.field-error input,.field-error select{border:2px solid #c00}
.error{color:#c00}
.warning{color:#8a6d00}
table{border-collapse:collapse;margin:.5rem 0}
td,th{border:1px solid #ccc;padding:.25rem .6rem;text-align:left}
nav a{margin-right:1rem}
</style>`

func layout(title string, body func(b *strings.Builder)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		fmt.Fprintf(&b, `<title>%s</title>`, templ.EscapeString(title))
		b.WriteString(pageStyle)
		b.WriteString(`</head><body>`)
		body(&b)
		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// NotFoundPage is shown for unknown variants.
func NotFoundPage(msg string) templ.Component {
	return layout("Not found", func(b *strings.Builder) {
		fmt.Fprintf(b, `<h1>Not found</h1><p>%s</p><p><a href="/">Back to the form</a></p>`, templ.EscapeString(msg))
	})
}

// FormPage renders the customer form for one variant.
func FormPage(view FormView) templ.Component {
	v := view.Variant
	return layout(v.Title, func(b *strings.Builder) {
		writeVariantNav(b, view.Variants, v.ID)
		fmt.Fprintf(b, `<h1>%s</h1>`, templ.EscapeString(v.Title))
		if view.Error != "" {
			fmt.Fprintf(b, `<p class="error" role="alert">%s</p>`, templ.EscapeString(view.Error))
		}

		fmt.Fprintf(b, `<form method="post" action="/forms/%s/predict">`, templ.EscapeString(url.PathEscape(v.ID)))
		for _, f := range v.Pipeline.Schema().Fields {
			writeField(b, f, view.Values[f.Name], f.Name == view.ErrorField)
		}
		b.WriteString(`<p><button type="submit">Predict</button></p></form>`)
	})
}

func writeVariantNav(b *strings.Builder, list []*variants.Variant, current string) {
	if len(list) < 2 {
		return
	}
	b.WriteString(`<nav>`)
	for _, v := range list {
		if v.ID == current {
			fmt.Fprintf(b, `<strong>%s</strong> `, templ.EscapeString(v.Title))
			continue
		}
		fmt.Fprintf(b, `<a href="/forms/%s/">%s</a>`, templ.EscapeString(url.PathEscape(v.ID)), templ.EscapeString(v.Title))
	}
	b.WriteString(`</nav>`)
}

func writeField(b *strings.Builder, f customer.Field, value string, invalid bool) {
	class := "field"
	if invalid {
		class += " field-error"
	}
	name := templ.EscapeString(f.Name)
	fmt.Fprintf(b, `<div class="%s"><label for="f-%s">%s</label>`, class, name, templ.EscapeString(f.DisplayLabel()))

	switch f.Kind {
	case customer.Categorical:
		fmt.Fprintf(b, `<select id="f-%s" name="%s">`, name, name)
		for _, opt := range f.Options {
			selected := ""
			if opt == value {
				selected = " selected"
			}
			fmt.Fprintf(b, `<option value="%s"%s>%s</option>`, templ.EscapeString(opt), selected, templ.EscapeString(opt))
		}
		b.WriteString(`</select>`)
	default:
		step := "any"
		if f.Step > 0 {
			step = formatFloat(f.Step)
		}
		fmt.Fprintf(b, `<input type="number" id="f-%s" name="%s" value="%s" step="%s"`, name, name, templ.EscapeString(value), step)
		if f.Min != nil {
			fmt.Fprintf(b, ` min="%s"`, formatFloat(*f.Min))
		}
		if f.Max != nil {
			fmt.Fprintf(b, ` max="%s"`, formatFloat(*f.Max))
		}
		b.WriteString(`>`)
	}
	b.WriteString(`</div>`)
}

// ResultPage renders a prediction with its explanation and the closest
// illustrative case.
func ResultPage(view ResultView) templ.Component {
	v := view.Variant
	return layout(v.Title+": result", func(b *strings.Builder) {
		fmt.Fprintf(b, `<h1>%s</h1>`, templ.EscapeString(v.Title))

		if view.Prediction == nil {
			fmt.Fprintf(b, `<section class="prediction"><h2>Prediction failed</h2><p class="error" role="alert">%s</p></section>`, templ.EscapeString(view.Error))
			fmt.Fprintf(b, `<p><a href="/forms/%s/">Back to the form</a></p>`, templ.EscapeString(url.PathEscape(v.ID)))
			return
		}

		p := view.Prediction
		verdict := "Not likely to subscribe"
		if p.Subscribed() {
			verdict = "Likely to subscribe"
		}
		fmt.Fprintf(b, `<section class="prediction"><h2>%s</h2>`, verdict)
		fmt.Fprintf(b, `<p>Subscription probability: <strong class="probability">%s</strong> (threshold %s)</p>`, percent(p.Probability), percent(p.Threshold))
		fmt.Fprintf(b, `<p class="prediction-id">Prediction %s</p></section>`, templ.EscapeString(p.ID))

		writeExplanation(b, view.Explanation)
		if view.Case != nil {
			writeCase(b, view.Case)
		}
		fmt.Fprintf(b, `<p><a href="/forms/%s/">Try another customer</a></p>`, templ.EscapeString(url.PathEscape(v.ID)))
	})
}

func writeExplanation(b *strings.Builder, res *explain.Result) {
	b.WriteString(`<section class="explanation"><h2>Why this prediction</h2>`)
	defer b.WriteString(`</section>`)

	if res == nil {
		b.WriteString(`<p class="warning">Explanation unavailable.</p>`)
		return
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(b, `<p class="warning">%s</p>`, templ.EscapeString(w))
	}
	if res.Unavailable {
		fmt.Fprintf(b, `<p class="warning explanation-unavailable">Explanation unavailable: %s</p>`, templ.EscapeString(res.Reason))
		return
	}

	r := res.Rendering
	switch r.Stage {
	case explain.StageInteractive:
		b.WriteString(r.HTML)
	case explain.StageStatic:
		fmt.Fprintf(b, `<img class="attribution-chart" alt="Feature attributions" src="data:image/png;base64,%s">`, base64.StdEncoding.EncodeToString(r.PNG))
	case explain.StageTable:
		writeContributionTable(b, "Pushing towards subscription", r.Table.Positive)
		writeContributionTable(b, "Pushing away from subscription", r.Table.Negative)
	}
	if res.Attributions != nil {
		fmt.Fprintf(b, `<p class="base-value">Base value %.3f, model output %.3f (reference: %s)</p>`,
			res.Attributions.BaseValue, res.Attributions.Output, res.Reference)
	}
}

func writeContributionTable(b *strings.Builder, caption string, rows []explain.Contribution) {
	fmt.Fprintf(b, `<table><caption>%s</caption><tr><th>Feature</th><th>Contribution</th></tr>`, templ.EscapeString(caption))
	if len(rows) == 0 {
		b.WriteString(`<tr><td colspan="2">none</td></tr>`)
	}
	for _, c := range rows {
		fmt.Fprintf(b, `<tr><td>%s</td><td>%+.4f</td></tr>`, templ.EscapeString(c.Feature), c.Value)
	}
	b.WriteString(`</table>`)
}

func writeCase(b *strings.Builder, c *CaseResponse) {
	title := c.Title
	if title == "" {
		title = c.ID
	}
	fmt.Fprintf(b, `<section class="case" data-case="%s"><h2>Similar example: %s</h2>`, templ.EscapeString(c.ID), templ.EscapeString(title))
	fmt.Fprintf(b, `<p>Stored probability %s</p>`, percent(c.Probability))
	writeEntries(b, "Pushing towards subscription", c.TopPositive())
	writeEntries(b, "Pushing away from subscription", c.TopNegative())
	if c.ImageURL != "" {
		fmt.Fprintf(b, `<img class="case-image" alt="Explanation for %s" src="%s">`, templ.EscapeString(title), templ.EscapeString(c.ImageURL))
	} else {
		b.WriteString(`<p class="image-unavailable">Reference image unavailable for this case.</p>`)
	}
	b.WriteString(`</section>`)
}

func writeEntries(b *strings.Builder, caption string, entries []casebook.Entry) {
	rows := make([]explain.Contribution, len(entries))
	for i, e := range entries {
		rows[i] = explain.Contribution{Feature: e.Feature, Value: e.Value}
	}
	writeContributionTable(b, caption, rows)
}

package main

import (
	"github.com/liamcoop/termdeposit/casebook"
	"github.com/liamcoop/termdeposit/customer"
	"github.com/liamcoop/termdeposit/explain"
	"github.com/liamcoop/termdeposit/pipeline"
	"github.com/liamcoop/termdeposit/variants"
)

// VariantResponse describes one form variant.
type VariantResponse struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Model      string  `json:"model"`
	Version    string  `json:"version,omitempty"`
	Classifier string  `json:"classifier"`
	Threshold  float64 `json:"threshold"`
	Policy     string  `json:"policy"`
	Fields     int     `json:"fields"`
}

func newVariantResponse(v *variants.Variant) VariantResponse {
	p := v.Pipeline
	return VariantResponse{
		ID:         v.ID,
		Title:      v.Title,
		Model:      p.Name(),
		Version:    p.Version(),
		Classifier: p.Classifier().Kind(),
		Threshold:  p.Policy().Threshold(),
		Policy:     p.Policy().Expression(),
		Fields:     len(p.Schema().Fields),
	}
}

// VariantsListResponse is the body of GET /api/v1/variants.
type VariantsListResponse struct {
	Default  string            `json:"default"`
	Variants []VariantResponse `json:"variants"`
}

// SchemaResponse is the body of GET /api/v1/variants/{variant}/schema.
type SchemaResponse struct {
	Variant  string           `json:"variant"`
	Fields   []customer.Field `json:"fields"`
	Features []string         `json:"features"`
}

// PredictRequest is the body of POST /api/v1/variants/{variant}/predict.
type PredictRequest struct {
	Record customer.Record `json:"record"`
}

// PredictResponse carries the prediction, its explanation and the closest
// illustrative case.
type PredictResponse struct {
	Variant     string               `json:"variant"`
	Prediction  *pipeline.Prediction `json:"prediction"`
	Explanation *explain.Result      `json:"explanation"`
	NearestCase *CaseResponse        `json:"nearestCase"`
}

// CaseResponse is an illustrative case with its image location, if any.
type CaseResponse struct {
	casebook.Case
	ImageURL string `json:"imageUrl,omitempty"`
}

// CasesListResponse is the body of GET /api/v1/cases.
type CasesListResponse struct {
	Cases []CaseResponse `json:"cases"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status         string `json:"status"`
	VariantsLoaded int    `json:"variantsLoaded"`
	Database       string `json:"database,omitempty"`
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"

	"github.com/liamcoop/termdeposit/casebook"
	"github.com/liamcoop/termdeposit/customer"
	"github.com/liamcoop/termdeposit/internal/logger"
	"github.com/liamcoop/termdeposit/internal/metrics"
	"github.com/liamcoop/termdeposit/pipeline"
	"github.com/liamcoop/termdeposit/variants"
)

type Server struct {
	db          *sql.DB
	registry    *variants.Registry
	cases       *casebook.Book
	router      *chi.Mux
	corsOrigins []string
	timeout     time.Duration
}

// ServerOption adjusts a Server.
type ServerOption func(*Server)

// WithDB attaches the optional training-sample database, checked by the
// health endpoint.
func WithDB(db *sql.DB) ServerOption {
	return func(s *Server) { s.db = db }
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRequestTimeout bounds each request.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.timeout = d }
}

func NewServer(registry *variants.Registry, cases *casebook.Book, opts ...ServerOption) *Server {
	s := &Server{
		registry:    registry,
		cases:       cases,
		corsOrigins: []string{"*"},
		timeout:     60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// HTML forms
	r.Get("/", s.handleIndex)
	r.Route("/forms/{variant}", func(r chi.Router) {
		r.Get("/", s.handleForm)
		r.Post("/predict", s.handleFormPredict)
	})
	r.Get("/cases/{caseId}/image", s.handleCaseImage)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", s.handleHealth)

		r.Route("/variants", func(r chi.Router) {
			r.Get("/", s.handleListVariants)
			r.Get("/{variant}/schema", s.handleGetSchema)
			r.Post("/{variant}/predict", s.handlePredict)
		})

		r.Route("/cases", func(r chi.Router) {
			r.Get("/", s.handleListCases)
			r.Get("/nearest", s.handleNearestCase)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// predict runs one record through a variant: prediction, then explanation,
// then the nearest illustrative case. Only the prediction can fail.
func (s *Server) predict(ctx context.Context, v *variants.Variant, rec customer.Record) (*PredictResponse, error) {
	pred, err := v.Pipeline.Predict(rec)
	if err != nil {
		return nil, err
	}
	metrics.ObservePrediction(v.ID, pred.Label, pred.Probability)

	nearest := s.caseResponse(s.cases.Nearest(pred.Probability))
	return &PredictResponse{
		Variant:     v.ID,
		Prediction:  pred,
		Explanation: v.Explainer.Explain(ctx, pred.Features),
		NearestCase: &nearest,
	}, nil
}

func (s *Server) caseResponse(c casebook.Case) CaseResponse {
	resp := CaseResponse{Case: c}
	if _, err := s.cases.ImagePath(c); err == nil {
		resp.ImageURL = "/cases/" + c.ID + "/image"
	}
	return resp
}

// predictionErrorKind classifies a Predict failure for metrics and status.
func predictionErrorKind(err error) (string, int) {
	switch {
	case pipeline.IsModelInputError(err):
		return "model_input", http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrNonFiniteOutput):
		return "non_finite_output", http.StatusInternalServerError
	default:
		return "internal", http.StatusInternalServerError
	}
}

// Index handler: the default variant's form
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	v := s.registry.Default()
	s.renderHTML(w, r, http.StatusOK, FormPage(s.formView(v, nil, nil)))
}

// Form handler
func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	v, err := s.registry.Get(chi.URLParam(r, "variant"))
	if err != nil {
		s.renderHTML(w, r, http.StatusNotFound, NotFoundPage(err.Error()))
		return
	}
	s.renderHTML(w, r, http.StatusOK, FormPage(s.formView(v, nil, nil)))
}

// Form submission handler
func (s *Server) handleFormPredict(w http.ResponseWriter, r *http.Request) {
	v, err := s.registry.Get(chi.URLParam(r, "variant"))
	if err != nil {
		s.renderHTML(w, r, http.StatusNotFound, NotFoundPage(err.Error()))
		return
	}

	if err := r.ParseForm(); err != nil {
		s.renderHTML(w, r, http.StatusBadRequest, FormPage(s.formView(v, nil, err)))
		return
	}

	rec, err := v.Pipeline.Schema().ParseForm(r.PostForm)
	if err != nil {
		metrics.PredictionErrors.WithLabelValues(v.ID, "form").Inc()
		s.renderHTML(w, r, http.StatusBadRequest, FormPage(s.formView(v, r.PostForm, err)))
		return
	}

	resp, err := s.predict(r.Context(), v, rec)
	if err != nil {
		kind, status := predictionErrorKind(err)
		metrics.PredictionErrors.WithLabelValues(v.ID, kind).Inc()
		if status >= 500 {
			logger.Error("prediction failed", "variant", v.ID, "error", err)
		}
		s.renderHTML(w, r, status, ResultPage(ResultView{Variant: v, Error: err.Error()}))
		return
	}

	s.renderHTML(w, r, http.StatusOK, ResultPage(ResultView{
		Variant:     v,
		Prediction:  resp.Prediction,
		Explanation: resp.Explanation,
		Case:        resp.NearestCase,
	}))
}

// Case image handler
func (s *Server) handleCaseImage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.cases.Get(chi.URLParam(r, "caseId"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	path, err := s.cases.ImagePath(c)
	if err != nil {
		logger.WarnHttp4xx()
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, path)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "healthy",
		VariantsLoaded: s.registry.Len(),
	}

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			// The database only feeds explanation backgrounds.
			resp.Status = "degraded"
			resp.Database = err.Error()
		} else {
			resp.Database = "ok"
		}
	}

	respondJSON(w, r, http.StatusOK, resp)
}

// List variants handler
func (s *Server) handleListVariants(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	resp := VariantsListResponse{
		Default:  s.registry.Default().ID,
		Variants: make([]VariantResponse, 0, len(list)),
	}
	for _, v := range list {
		resp.Variants = append(resp.Variants, newVariantResponse(v))
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// Get schema handler
func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	v, err := s.registry.Get(chi.URLParam(r, "variant"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, "variant not found", err)
		return
	}

	respondJSON(w, r, http.StatusOK, SchemaResponse{
		Variant:  v.ID,
		Fields:   v.Pipeline.Schema().Fields,
		Features: v.Pipeline.FeatureNames(),
	})
}

// Prediction handler
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	v, err := s.registry.Get(chi.URLParam(r, "variant"))
	if err != nil {
		respondError(w, r, http.StatusNotFound, "variant not found", err)
		return
	}

	var req PredictRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Record == nil {
		respondError(w, r, http.StatusBadRequest, "record is required", nil)
		return
	}

	resp, err := s.predict(r.Context(), v, req.Record)
	if err != nil {
		kind, status := predictionErrorKind(err)
		metrics.PredictionErrors.WithLabelValues(v.ID, kind).Inc()

		var inputErr *pipeline.ModelInputError
		if errors.As(err, &inputErr) {
			respondJSON(w, r, status, ErrorResponse{Error: "model input error", Details: err.Error(), Field: inputErr.Field})
			logger.WarnHttp4xx()
			return
		}
		respondError(w, r, status, "prediction failed", err)
		return
	}

	respondJSON(w, r, http.StatusOK, resp)
}

// List cases handler
func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	cases := s.cases.Cases()
	resp := CasesListResponse{Cases: make([]CaseResponse, 0, len(cases))}
	for _, c := range cases {
		resp.Cases = append(resp.Cases, s.caseResponse(c))
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// Nearest case handler
func (s *Server) handleNearestCase(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("probability")
	if raw == "" {
		respondError(w, r, http.StatusBadRequest, "probability is required", nil)
		return
	}

	p, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(p) || p < 0 || p > 1 {
		respondError(w, r, http.StatusBadRequest, fmt.Sprintf("probability must be a number in [0,1], got %q", raw), nil)
		return
	}

	respondJSON(w, r, http.StatusOK, s.caseResponse(s.cases.Nearest(p)))
}

func (s *Server) renderHTML(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	switch {
	case status >= 500:
		logger.ErrorHttp5xx()
	case status >= 400:
		logger.WarnHttp4xx()
	}
	templ.Handler(c, templ.WithStatus(status)).ServeHTTP(w, r)
}

// Helper functions
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	render.Status(r, status)
	render.JSON(w, r, data)
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if status >= 500 {
		logger.ErrorHttp5xx()
		logger.Error(message, "path", r.URL.Path, "error", err)
	} else {
		logger.WarnHttp4xx()
	}

	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, r, status, resp)
}

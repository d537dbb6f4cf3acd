package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/liamcoop/termdeposit/internal/logger"
)

var (
	Predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termdeposit_predictions_total",
		Help: "Predictions served, by form variant and label.",
	}, []string{"variant", "label"})

	PredictionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termdeposit_prediction_errors_total",
		Help: "Requests rejected before a prediction, by variant and kind.",
	}, []string{"variant", "kind"})

	ExplanationStages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "termdeposit_explanation_stages_total",
		Help: "Explanation steps attempted, by stage and outcome.",
	}, []string{"stage", "outcome"})

	PredictionProbability = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "termdeposit_prediction_probability",
		Help:    "Distribution of predicted subscription probabilities.",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
	}, []string{"variant"})
)

func init() {
	prometheus.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "termdeposit_log_warnings_total",
			Help: "Warnings logged, before sampling.",
		}, func() float64 { return float64(logger.TotalWarnings.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "termdeposit_log_errors_total",
			Help: "Errors logged, before sampling.",
		}, func() float64 { return float64(logger.TotalErrors.Load()) }),
	)
}

// ObserveExplanation counts one explanation step outcome.
func ObserveExplanation(stage, outcome string) {
	ExplanationStages.WithLabelValues(stage, outcome).Inc()
}

// ObservePrediction records a served prediction.
func ObservePrediction(variant string, label int, probability float64) {
	l := "not_subscribed"
	if label == 1 {
		l = "subscribed"
	}
	Predictions.WithLabelValues(variant, l).Inc()
	PredictionProbability.WithLabelValues(variant).Observe(probability)
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.ModelPath != "models/rf_pipeline.json" {
		t.Errorf("ModelPath = %q", cfg.ModelPath)
	}
	if cfg.DecisionThreshold != nil {
		t.Errorf("DecisionThreshold = %v, want unset", *cfg.DecisionThreshold)
	}
	if cfg.BackgroundTTL != 10*time.Minute {
		t.Errorf("BackgroundTTL = %v", cfg.BackgroundTTL)
	}
	if cfg.Explain.Samples != 64 || cfg.Explain.Fallback != "input" || !cfg.Explain.Interactive {
		t.Errorf("Explain = %+v", cfg.Explain)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DECISION_THRESHOLD", "0.35")
	t.Setenv("EXPLAIN_SAMPLES", "16")
	t.Setenv("EXPLAIN_INTERACTIVE", "false")
	t.Setenv("EXPLAIN_FALLBACK_REFERENCE", "zeros")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.DecisionThreshold == nil || *cfg.DecisionThreshold != 0.35 {
		t.Errorf("DecisionThreshold = %v", cfg.DecisionThreshold)
	}
	if cfg.Explain.Samples != 16 || cfg.Explain.Interactive || cfg.Explain.Fallback != "zeros" {
		t.Errorf("Explain = %+v", cfg.Explain)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{"threshold above one", "DECISION_THRESHOLD", "1.5"},
		{"threshold not a number", "DECISION_THRESHOLD", "high"},
		{"zero samples", "EXPLAIN_SAMPLES", "0"},
		{"unknown fallback", "EXPLAIN_FALLBACK_REFERENCE", "mean"},
		{"bad ttl", "BACKGROUND_TTL", "soon"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestLoadVariants(t *testing.T) {
	path := filepath.Join(t.TempDir(), "variants.yaml")
	content := `
variants:
  - id: rf
    model_path: models/rf_pipeline.json
  - id: lr
    title: Logistic
    model_path: models/lr_duration_pipeline.json
    threshold: 0.35
    policy: probability >= threshold && record["duration"] > 0.0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	vf, err := LoadVariants(path)
	if err != nil {
		t.Fatalf("LoadVariants() failed: %v", err)
	}
	if vf.Default != "rf" {
		t.Errorf("Default = %q, want first variant", vf.Default)
	}
	if len(vf.Variants) != 2 {
		t.Fatalf("got %d variants", len(vf.Variants))
	}
	lr := vf.Variants[1]
	if lr.Threshold == nil || *lr.Threshold != 0.35 {
		t.Errorf("Threshold = %v", lr.Threshold)
	}
	if !strings.Contains(lr.Policy, "duration") {
		t.Errorf("Policy = %q", lr.Policy)
	}
}

func TestLoadVariants_ShippedFile(t *testing.T) {
	vf, err := LoadVariants(filepath.Join("..", "..", "models", "variants.yaml"))
	if err != nil {
		t.Fatalf("LoadVariants() failed: %v", err)
	}
	if vf.Default != "rf" || len(vf.Variants) != 2 {
		t.Errorf("unexpected variants file: %+v", vf)
	}
}

func TestLoadVariants_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"empty", "variants: []"},
		{"missing model", "variants:\n  - id: rf"},
		{"missing id", "variants:\n  - model_path: m.json"},
		{"bad yaml", "variants: ["},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "v.yaml")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadVariants(path); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}

	if _, err := LoadVariants(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestDefaultVariants(t *testing.T) {
	cfg := &Config{ModelPath: "models/x.json"}
	vf := cfg.DefaultVariants()
	if vf.Default != "default" || len(vf.Variants) != 1 || vf.Variants[0].ModelPath != "models/x.json" {
		t.Errorf("DefaultVariants() = %+v", vf)
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// ModelPath is the artifact for the "default" variant. Ignored when
	// VariantsFile is set.
	ModelPath    string `env:"MODEL_PATH" envDefault:"models/rf_pipeline.json"`
	VariantsFile string `env:"VARIANTS_FILE"`

	DecisionThreshold *float64 `env:"DECISION_THRESHOLD"`
	DecisionPolicy    string   `env:"DECISION_POLICY"`

	BackgroundPath  string        `env:"BACKGROUND_PATH"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	BackgroundLimit int           `env:"BACKGROUND_LIMIT" envDefault:"100"`
	BackgroundTTL   time.Duration `env:"BACKGROUND_TTL" envDefault:"10m"`

	CaseImageDir string `env:"CASE_IMAGE_DIR" envDefault:"assets/cases"`

	Explain ExplainConfig `envPrefix:"EXPLAIN_"`

	CORSOrigins    []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
}

// ExplainConfig tunes the explanation adapter.
type ExplainConfig struct {
	Samples     int    `env:"SAMPLES" envDefault:"64"`
	Seed        uint64 `env:"SEED" envDefault:"42"`
	TopN        int    `env:"TOP_N" envDefault:"10"`
	MaxDisplay  int    `env:"MAX_DISPLAY" envDefault:"12"`
	Interactive bool   `env:"INTERACTIVE" envDefault:"true"`
	Static      bool   `env:"STATIC" envDefault:"true"`
	Fallback    string `env:"FALLBACK_REFERENCE" envDefault:"input"`
}

// Load parses the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	if c.DecisionThreshold != nil && (*c.DecisionThreshold < 0 || *c.DecisionThreshold > 1) {
		return fmt.Errorf("DECISION_THRESHOLD %v outside [0,1]", *c.DecisionThreshold)
	}
	if c.Explain.Samples < 1 {
		return fmt.Errorf("EXPLAIN_SAMPLES must be at least 1, got %d", c.Explain.Samples)
	}
	switch c.Explain.Fallback {
	case "input", "zeros":
	default:
		return fmt.Errorf("EXPLAIN_FALLBACK_REFERENCE must be input or zeros, got %q", c.Explain.Fallback)
	}
	if c.ModelPath == "" && c.VariantsFile == "" {
		return fmt.Errorf("one of MODEL_PATH or VARIANTS_FILE is required")
	}
	return nil
}

// VariantSpec declares one form variant in the variants file.
type VariantSpec struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	ModelPath string   `yaml:"model_path"`
	Threshold *float64 `yaml:"threshold,omitempty"`
	Policy    string   `yaml:"policy,omitempty"`
	// BackgroundPath overrides the process-wide BACKGROUND_PATH.
	BackgroundPath string `yaml:"background_path,omitempty"`
}

// VariantsFile is the YAML document listing form variants.
type VariantsFile struct {
	Default  string        `yaml:"default"`
	Variants []VariantSpec `yaml:"variants"`
}

// LoadVariants reads a variants file.
func LoadVariants(path string) (*VariantsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variants file %s: %w", path, err)
	}

	var vf VariantsFile
	if err := yaml.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("parse variants file %s: %w", path, err)
	}
	if len(vf.Variants) == 0 {
		return nil, fmt.Errorf("variants file %s declares no variants", path)
	}
	for i, v := range vf.Variants {
		if v.ID == "" || v.ModelPath == "" {
			return nil, fmt.Errorf("variants file %s: entry %d needs id and model_path", path, i)
		}
	}
	if vf.Default == "" {
		vf.Default = vf.Variants[0].ID
	}
	return &vf, nil
}

// DefaultVariants builds the single-variant file implied by MODEL_PATH.
func (c *Config) DefaultVariants() *VariantsFile {
	return &VariantsFile{
		Default: "default",
		Variants: []VariantSpec{{
			ID:        "default",
			Title:     "Term deposit subscription",
			ModelPath: c.ModelPath,
		}},
	}
}

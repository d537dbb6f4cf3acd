package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrArtifact wraps every failure to read or compile a pipeline artifact.
// A process that cannot load its artifact cannot serve requests.
var ErrArtifact = errors.New("pipeline artifact")

// Artifact is the serialized two-stage pipeline: a preprocessing stage that
// maps a customer record onto a numeric feature vector, and a classifier
// stage that maps the vector onto P(subscribe).
type Artifact struct {
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	Threshold *float64       `json:"threshold,omitempty"`
	Pre       PreprocessSpec `json:"pre"`
	Clf       ClassifierSpec `json:"clf"`
}

// PreprocessSpec declares the preprocessing stage. Output columns are laid
// out numeric first, then one-hot categorical, then derived.
type PreprocessSpec struct {
	// Order lists raw input names in the order the form presents them.
	// When empty, numeric inputs come first, then categorical ones.
	Order       []string          `json:"order,omitempty"`
	Numeric     []NumericStep     `json:"numeric"`
	Categorical []CategoricalStep `json:"categorical"`
	Derived     []DerivedStep     `json:"derived,omitempty"`
}

// NumericStep standardises one numeric input.
type NumericStep struct {
	Name  string    `json:"name"`
	Label string    `json:"label,omitempty"`
	Mean  float64   `json:"mean"`
	Scale float64   `json:"scale"`
	Form  FormHints `json:"form"`
}

// FormHints carries the numeric input's presentation constraints.
type FormHints struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Default float64  `json:"default"`
	Step    float64  `json:"step,omitempty"`
	Integer bool     `json:"integer,omitempty"`
}

// CategoricalStep one-hot encodes one categorical input against a closed
// vocabulary.
type CategoricalStep struct {
	Name       string   `json:"name"`
	Label      string   `json:"label,omitempty"`
	Categories []string `json:"categories"`
}

// DerivedStep computes an extra column from the raw record with a CEL
// expression. Boolean results become 0 or 1.
type DerivedStep struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// Classifier kinds understood by the loader.
const (
	KindLogistic = "logistic"
	KindForest   = "forest"
)

// ClassifierSpec declares the classifier stage. Feature references use the
// preprocessed column names (num__age, cat__job_admin., der__...).
type ClassifierSpec struct {
	Kind         string             `json:"kind"`
	Intercept    float64            `json:"intercept,omitempty"`
	Coefficients map[string]float64 `json:"coefficients,omitempty"`
	Trees        []TreeSpec         `json:"trees,omitempty"`
}

// TreeSpec is one decision tree stored as a flat node list rooted at index 0.
type TreeSpec struct {
	Nodes []NodeSpec `json:"nodes"`
}

// NodeSpec is a split (x[feature] <= threshold goes left) or a leaf holding
// P(subscribe).
type NodeSpec struct {
	Feature   string  `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// ReadArtifact decodes an artifact file without compiling it.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrArtifact, path, err)
	}
	return ParseArtifact(data)
}

// ParseArtifact decodes artifact JSON. Unknown keys are rejected so that a
// mistyped field does not silently fall back to its zero value.
func ParseArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrArtifact, err)
	}
	if a.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrArtifact)
	}
	return &a, nil
}

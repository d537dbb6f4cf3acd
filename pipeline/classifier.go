package pipeline

import (
	"fmt"
	"math"
)

// Classifier is the second pipeline stage: a preprocessed feature vector in,
// P(subscribe) out. Implementations are read-only after construction.
type Classifier interface {
	Kind() string
	PredictProba(x []float64) float64
}

func newClassifier(spec ClassifierSpec, names []string) (Classifier, error) {
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	switch spec.Kind {
	case KindLogistic:
		return newLogistic(spec, index, len(names))
	case KindForest:
		return newForest(spec, index)
	default:
		return nil, fmt.Errorf("unknown classifier kind %q (must be one of: %s, %s)", spec.Kind, KindLogistic, KindForest)
	}
}

// Logistic is a linear model squashed through the logistic function.
type Logistic struct {
	intercept float64
	weights   []float64
}

func newLogistic(spec ClassifierSpec, index map[string]int, width int) (*Logistic, error) {
	if len(spec.Coefficients) == 0 {
		return nil, fmt.Errorf("logistic classifier has no coefficients")
	}
	weights := make([]float64, width)
	for name, w := range spec.Coefficients {
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("coefficient references unknown feature %q", name)
		}
		weights[i] = w
	}
	return &Logistic{intercept: spec.Intercept, weights: weights}, nil
}

func (l *Logistic) Kind() string { return KindLogistic }

func (l *Logistic) PredictProba(x []float64) float64 {
	z := l.intercept
	for i, w := range l.weights {
		if i < len(x) {
			z += w * x[i]
		}
	}
	return 1 / (1 + math.Exp(-z))
}

type node struct {
	feature     int
	threshold   float64
	left, right int
	leaf        bool
	value       float64
}

// Forest averages the leaf probabilities of its trees.
type Forest struct {
	trees [][]node
}

func newForest(spec ClassifierSpec, index map[string]int) (*Forest, error) {
	if len(spec.Trees) == 0 {
		return nil, fmt.Errorf("forest classifier has no trees")
	}

	f := &Forest{trees: make([][]node, len(spec.Trees))}
	for t, tree := range spec.Trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("tree %d has no nodes", t)
		}
		nodes := make([]node, len(tree.Nodes))
		for i, n := range tree.Nodes {
			if n.Leaf {
				if n.Value < 0 || n.Value > 1 {
					return nil, fmt.Errorf("tree %d node %d: leaf value %v outside [0,1]", t, i, n.Value)
				}
				nodes[i] = node{leaf: true, value: n.Value}
				continue
			}
			feat, ok := index[n.Feature]
			if !ok {
				return nil, fmt.Errorf("tree %d node %d references unknown feature %q", t, i, n.Feature)
			}
			// Children must come after their parent, which rules out cycles.
			if n.Left <= i || n.Right <= i || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
				return nil, fmt.Errorf("tree %d node %d has invalid children %d/%d", t, i, n.Left, n.Right)
			}
			nodes[i] = node{feature: feat, threshold: n.Threshold, left: n.Left, right: n.Right}
		}
		f.trees[t] = nodes
	}
	return f, nil
}

func (f *Forest) Kind() string { return KindForest }

func (f *Forest) PredictProba(x []float64) float64 {
	var sum float64
	for _, nodes := range f.trees {
		i := 0
		for !nodes[i].leaf {
			n := nodes[i]
			if n.feature < len(x) && x[n.feature] <= n.threshold {
				i = n.left
			} else {
				i = n.right
			}
		}
		sum += nodes[i].value
	}
	return sum / float64(len(f.trees))
}

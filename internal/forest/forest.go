// Package forest implements a bagged ensemble of CART regression trees.
package forest

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// Params is the hyperparameter profile of a forest.
type Params struct {
	NEstimators     int    `json:"n_estimators"`
	MaxDepth        int    `json:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf"`
	Bootstrap       bool   `json:"bootstrap"`
	Seed            uint64 `json:"seed"`
}

// DefaultParams is the fixed profile used by every retrain.
func DefaultParams() Params {
	return Params{
		NEstimators:     200,
		MaxDepth:        10,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		Seed:            42,
	}
}

func (p Params) validate() error {
	if p.NEstimators <= 0 {
		return errors.New("n_estimators must be positive")
	}
	if p.MaxDepth <= 0 {
		return errors.New("max_depth must be positive")
	}
	if p.MinSamplesSplit < 2 {
		return errors.New("min_samples_split must be >= 2")
	}
	return nil
}

// Forest is a fitted random forest regressor.
type Forest struct {
	Params    Params `json:"params"`
	Features  int    `json:"n_features"`
	TrainRows int    `json:"train_rows"`
	Trees     []Tree `json:"trees"`
}

// Fit grows p.NEstimators trees on X (rows of features) against y. The same
// inputs and seed always produce the same forest.
func Fit(X [][]float64, y []float64, p Params) (*Forest, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("forest params: %w", err)
	}
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("invalid training data: %d rows, %d targets", len(X), len(y))
	}
	nFeatures := len(X[0])
	if nFeatures == 0 {
		return nil, errors.New("invalid training data: no features")
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("feature count mismatch at row %d: expected %d, got %d", i, nFeatures, len(row))
		}
	}

	f := &Forest{Params: p, Features: nFeatures, TrainRows: len(X), Trees: make([]Tree, p.NEstimators)}
	n := len(X)
	for t := 0; t < p.NEstimators; t++ {
		rng := rand.New(rand.NewPCG(p.Seed, uint64(t)))
		idx := make([]int, n)
		if p.Bootstrap {
			for i := range idx {
				idx[i] = rng.IntN(n)
			}
		} else {
			for i := range idx {
				idx[i] = i
			}
		}
		b := &treeBuilder{x: X, y: y, params: p, rng: rng}
		b.build(idx, 0)
		f.Trees[t] = Tree{Nodes: b.nodes}
	}
	return f, nil
}

// Predict averages the trees' outputs for one sample.
func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees))
}

// NumFeatures reports the input width the forest was fitted on.
func (f *Forest) NumFeatures() int { return f.Features }

// Validate checks a decoded forest is structurally usable.
func (f *Forest) Validate() error {
	if f.Features <= 0 {
		return errors.New("forest has no features")
	}
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= f.Features {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d: bad child index", ti, ni)
			}
		}
	}
	return nil
}

// Trainer fits forests with a fixed profile.
type Trainer struct {
	Params Params
}

// NewTrainer returns a Trainer using DefaultParams.
func NewTrainer() *Trainer {
	return &Trainer{Params: DefaultParams()}
}

func (t *Trainer) Fit(X [][]float64, y []float64) (*Forest, error) {
	return Fit(X, y, t.Params)
}

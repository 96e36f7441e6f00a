package core

import (
	"gonum.org/v1/gonum/mat"
)

// Names of the two stages every pipeline artifact carries.
const (
	PreprocessorStep = "preprocessor"
	RegressorStep    = "regressor"
)

// Transformer is the preprocessor stage of a pipeline.
type Transformer interface {
	Transform(t *Table) (*mat.Dense, error)
}

// Regressor is the regressor stage of a pipeline. It returns one value per
// row of features.
type Regressor interface {
	Predict(features mat.Matrix) ([]float64, error)
}

// Pipeline is a loaded, immutable regression pipeline. It is safe for
// concurrent use once constructed.
type Pipeline struct {
	Preprocessor Transformer
	Regressor    Regressor
}

type Summary struct {
	InputColumns []string `json:"input_columns,omitempty"`
	NFeatures    int      `json:"n_features,omitempty"`
	NEstimators  int      `json:"n_estimators,omitempty"`
}

func (p *Pipeline) Summary() Summary {
	var s Summary
	if pre, ok := p.Preprocessor.(interface{ InputColumns() []string }); ok {
		s.InputColumns = pre.InputColumns()
	}
	if reg, ok := p.Regressor.(*GradientBoosting); ok {
		s.NFeatures = reg.NFeatures()
		s.NEstimators = reg.NEstimators()
	}
	return s
}

type InferenceError struct {
	Stage string
	Err   error
}

func (e *InferenceError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

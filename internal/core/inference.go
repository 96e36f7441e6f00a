package core

import (
	"log/slog"
	"time"
)

// RunInference applies the preprocessor and then the regressor to a table.
// Errors from either stage are returned as *InferenceError.
func RunInference(p *Pipeline, t *Table) ([]float64, error) {
	start := time.Now()

	features, err := p.Preprocessor.Transform(t)
	if err != nil {
		return nil, asInferenceError(PreprocessorStep, err)
	}

	predictions, err := p.Regressor.Predict(features)
	if err != nil {
		return nil, asInferenceError(RegressorStep, err)
	}

	slog.Debug("pipeline inference complete", "rows", t.Len(), "duration", time.Since(start))
	return predictions, nil
}

func asInferenceError(stage string, err error) error {
	if _, ok := err.(*InferenceError); ok {
		return err
	}
	return &InferenceError{Stage: stage, Err: err}
}

package core

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

const (
	ArtifactFormat  = "gbr-pipeline"
	ArtifactVersion = 1
)

// Artifact is the serialized form of a pipeline. Producers export the fitted
// preprocessor and regressor into this layout.
type Artifact struct {
	Format     string     `json:"format"`
	Version    int        `json:"version"`
	NamedSteps NamedSteps `json:"named_steps"`
}

type NamedSteps struct {
	Preprocessor *PreprocessorSpec `json:"preprocessor"`
	Regressor    *RegressorSpec    `json:"regressor"`
}

type PreprocessorSpec struct {
	Transformers []TransformerSpec `json:"transformers"`
}

type TransformerSpec struct {
	Name    string          `json:"name"`
	Kind    TransformerKind `json:"kind"`
	Columns []string        `json:"columns"`

	// standard_scaler
	Impute []float64 `json:"impute,omitempty"`
	Mean   []float64 `json:"mean,omitempty"`
	Scale  []float64 `json:"scale,omitempty"`

	// one_hot
	Categories    [][]string `json:"categories,omitempty"`
	HandleUnknown string     `json:"handle_unknown,omitempty"`
	FillValue     *string    `json:"fill_value,omitempty"`
}

type RegressorSpec struct {
	Kind         string     `json:"kind"`
	NFeatures    int        `json:"n_features"`
	LearningRate float64    `json:"learning_rate"`
	Init         float64    `json:"init"`
	Trees        []TreeSpec `json:"trees"`
}

type TreeSpec struct {
	ChildrenLeft    []int     `json:"children_left"`
	ChildrenRight   []int     `json:"children_right"`
	Feature         []int     `json:"feature"`
	Threshold       []float64 `json:"threshold"`
	Value           []float64 `json:"value"`
	MissingGoToLeft []bool    `json:"missing_go_to_left,omitempty"`
}

const gradientBoostingKind = "gradient_boosting"

var ErrInvalidArtifact = errors.New("invalid pipeline artifact")

// Decode reads a JSON pipeline artifact, gzip compressed or not, and builds
// a validated Pipeline from it.
func Decode(r io.Reader) (*Pipeline, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("error opening gzip artifact: %w", err)
		}
		defer gz.Close()
		r = gz
	} else {
		r = br
	}

	var artifact Artifact
	if err := json.NewDecoder(r).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("error decoding artifact: %w", err)
	}

	return Build(artifact)
}

// Build validates an artifact and constructs the two pipeline stages.
func Build(a Artifact) (*Pipeline, error) {
	if a.Format != ArtifactFormat {
		return nil, fmt.Errorf("%w: unexpected format %q, expected %q", ErrInvalidArtifact, a.Format, ArtifactFormat)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("%w: unsupported version %d, expected %d", ErrInvalidArtifact, a.Version, ArtifactVersion)
	}
	if a.NamedSteps.Preprocessor == nil {
		return nil, fmt.Errorf("%w: missing named step %q", ErrInvalidArtifact, PreprocessorStep)
	}
	if a.NamedSteps.Regressor == nil {
		return nil, fmt.Errorf("%w: missing named step %q", ErrInvalidArtifact, RegressorStep)
	}

	pre, err := buildColumnTransformer(*a.NamedSteps.Preprocessor)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidArtifact, PreprocessorStep, err)
	}

	reg, err := buildRegressor(*a.NamedSteps.Regressor)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidArtifact, RegressorStep, err)
	}

	if pre.OutputWidth() != reg.NFeatures() {
		return nil, fmt.Errorf("%w: preprocessor produces %d features but regressor expects %d", ErrInvalidArtifact, pre.OutputWidth(), reg.NFeatures())
	}

	return &Pipeline{Preprocessor: pre, Regressor: reg}, nil
}

func buildColumnTransformer(spec PreprocessorSpec) (*ColumnTransformer, error) {
	if len(spec.Transformers) == 0 {
		return nil, fmt.Errorf("no transformers")
	}

	ct := &ColumnTransformer{}
	seen := make(map[string]string)

	for i, ts := range spec.Transformers {
		if len(ts.Columns) == 0 {
			return nil, fmt.Errorf("transformer %d (%s) has no columns", i, ts.Name)
		}
		for _, col := range ts.Columns {
			if prev, ok := seen[col]; ok {
				return nil, fmt.Errorf("column %q used by both %q and %q", col, prev, ts.Name)
			}
			seen[col] = ts.Name
		}

		n := len(ts.Columns)
		var enc columnEncoder

		switch ts.Kind {
		case StandardScaler:
			if len(ts.Mean) != n || len(ts.Scale) != n {
				return nil, fmt.Errorf("transformer %q: mean/scale must have %d entries", ts.Name, n)
			}
			if ts.Impute != nil && len(ts.Impute) != n {
				return nil, fmt.Errorf("transformer %q: impute must have %d entries", ts.Name, n)
			}
			enc = &standardScaler{columns: ts.Columns, impute: ts.Impute, mean: ts.Mean, scale: ts.Scale}

		case OneHotEncoder:
			if len(ts.Categories) != n {
				return nil, fmt.Errorf("transformer %q: categories must have %d entries", ts.Name, n)
			}
			for j, cats := range ts.Categories {
				if len(cats) == 0 {
					return nil, fmt.Errorf("transformer %q: column %q has no categories", ts.Name, ts.Columns[j])
				}
			}
			switch ts.HandleUnknown {
			case "", handleUnknownError, handleUnknownIgnore:
			default:
				return nil, fmt.Errorf("transformer %q: invalid handle_unknown %q", ts.Name, ts.HandleUnknown)
			}
			enc = newOneHotEncoder(ts.Columns, ts.Categories, ts.HandleUnknown, ts.FillValue)

		case Passthrough:
			enc = &passthrough{columns: ts.Columns}

		default:
			return nil, fmt.Errorf("transformer %q: unknown kind %q", ts.Name, ts.Kind)
		}

		for j := range n {
			ct.width += enc.width(j)
		}
		ct.encoders = append(ct.encoders, enc)
	}

	return ct, nil
}

func buildRegressor(spec RegressorSpec) (*GradientBoosting, error) {
	if spec.Kind != gradientBoostingKind {
		return nil, fmt.Errorf("unknown kind %q", spec.Kind)
	}

	trees := make([]Tree, len(spec.Trees))
	for i, ts := range spec.Trees {
		trees[i] = Tree{
			ChildrenLeft:    ts.ChildrenLeft,
			ChildrenRight:   ts.ChildrenRight,
			Feature:         ts.Feature,
			Threshold:       ts.Threshold,
			Value:           ts.Value,
			MissingGoToLeft: ts.MissingGoToLeft,
		}
	}

	return NewGradientBoosting(spec.NFeatures, spec.LearningRate, spec.Init, trees)
}

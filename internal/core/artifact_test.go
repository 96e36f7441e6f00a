package core_test

import (
	"bytes"
	"encoding/json"
	"gbr-server/internal/core"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stump(feature int, threshold, left, right float64) core.TreeSpec {
	return core.TreeSpec{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{feature, -2, -2},
		Threshold:     []float64{threshold, -2, -2},
		Value:         []float64{0, left, right},
	}
}

// sampleArtifact scales a and b, one-hot encodes c into [x, y], and sums two
// stumps: one on a and one on c == "y".
func sampleArtifact() core.Artifact {
	fill := "missing"
	return core.Artifact{
		Format:  core.ArtifactFormat,
		Version: core.ArtifactVersion,
		NamedSteps: core.NamedSteps{
			Preprocessor: &core.PreprocessorSpec{
				Transformers: []core.TransformerSpec{
					{Name: "num", Kind: core.StandardScaler, Columns: []string{"a", "b"}, Impute: []float64{0, 10}, Mean: []float64{0, 10}, Scale: []float64{1, 2}},
					{Name: "cat", Kind: core.OneHotEncoder, Columns: []string{"c"}, Categories: [][]string{{"x", "y"}}, HandleUnknown: "ignore", FillValue: &fill},
				},
			},
			Regressor: &core.RegressorSpec{
				Kind:         "gradient_boosting",
				NFeatures:    4,
				LearningRate: 0.5,
				Init:         5,
				Trees:        []core.TreeSpec{stump(0, 1.5, 1, 2), stump(3, 0.5, 0, 10)},
			},
		},
	}
}

func encodeArtifact(t *testing.T, a core.Artifact) []byte {
	data, err := json.Marshal(a)
	require.NoError(t, err)
	return data
}

func TestDecodeAndPredict(t *testing.T) {
	pipeline, err := core.Decode(bytes.NewReader(encodeArtifact(t, sampleArtifact())))
	require.NoError(t, err)

	table, err := core.TableFromJSON([]byte(`[{"a": 1, "b": 12, "c": "x"}, {"a": 2, "b": null, "c": "y"}, {"a": null, "b": 0, "c": "z"}]`))
	require.NoError(t, err)

	predictions, err := core.RunInference(pipeline, table)
	require.NoError(t, err)
	assert.Equal(t, []float64{5.5, 11, 5.5}, predictions)

	summary := pipeline.Summary()
	assert.Equal(t, []string{"a", "b", "c"}, summary.InputColumns)
	assert.Equal(t, 4, summary.NFeatures)
	assert.Equal(t, 2, summary.NEstimators)
}

func TestDecodeGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(encodeArtifact(t, sampleArtifact()))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	pipeline, err := core.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, pipeline.Summary().NEstimators)
}

func TestDecodeRejectsInvalidArtifacts(t *testing.T) {
	cases := map[string]func(a *core.Artifact){
		"wrong format":       func(a *core.Artifact) { a.Format = "pickle" },
		"wrong version":      func(a *core.Artifact) { a.Version = 2 },
		"missing regressor":  func(a *core.Artifact) { a.NamedSteps.Regressor = nil },
		"missing preprocess": func(a *core.Artifact) { a.NamedSteps.Preprocessor = nil },
		"width mismatch":     func(a *core.Artifact) { a.NamedSteps.Regressor.NFeatures = 5 },
		"no trees":           func(a *core.Artifact) { a.NamedSteps.Regressor.Trees = nil },
		"unknown kind":       func(a *core.Artifact) { a.NamedSteps.Preprocessor.Transformers[0].Kind = "pca" },
		"scaler arity":       func(a *core.Artifact) { a.NamedSteps.Preprocessor.Transformers[0].Mean = []float64{0} },
		"duplicate column": func(a *core.Artifact) {
			a.NamedSteps.Preprocessor.Transformers[1].Columns = []string{"a"}
		},
		"child out of range": func(a *core.Artifact) {
			a.NamedSteps.Regressor.Trees[0].ChildrenRight = []int{7, -1, -1}
		},
		"cycle": func(a *core.Artifact) {
			a.NamedSteps.Regressor.Trees[0].ChildrenLeft = []int{0, -1, -1}
		},
		"feature out of range": func(a *core.Artifact) {
			a.NamedSteps.Regressor.Trees[0].Feature = []int{9, -2, -2}
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			a := sampleArtifact()
			mutate(&a)
			_, err := core.Decode(bytes.NewReader(encodeArtifact(t, a)))
			assert.ErrorIs(t, err, core.ErrInvalidArtifact)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := core.Decode(bytes.NewReader([]byte("\x80\x04\x95not json")))
	assert.Error(t, err)
}

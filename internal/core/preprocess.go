package core

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

type TransformerKind string

const (
	StandardScaler TransformerKind = "standard_scaler"
	OneHotEncoder  TransformerKind = "one_hot"
	Passthrough    TransformerKind = "passthrough"
)

const (
	handleUnknownError  = "error"
	handleUnknownIgnore = "ignore"
)

// columnEncoder maps each of its input columns onto one or more output
// feature columns.
type columnEncoder interface {
	inputs() []string
	width(col int) int
	encode(col int, v Value, dst []float64) error
}

type standardScaler struct {
	columns []string
	impute  []float64
	mean    []float64
	scale   []float64
}

func (s *standardScaler) inputs() []string { return s.columns }

func (s *standardScaler) width(int) int { return 1 }

func (s *standardScaler) encode(col int, v Value, dst []float64) error {
	x, err := numeric(v)
	if err != nil {
		return err
	}
	if math.IsNaN(x) {
		if s.impute == nil {
			return fmt.Errorf("input column %q contains NaN", s.columns[col])
		}
		x = s.impute[col]
	}
	scale := s.scale[col]
	if scale == 0 {
		scale = 1
	}
	dst[0] = (x - s.mean[col]) / scale
	return nil
}

type oneHotEncoder struct {
	columns       []string
	categories    [][]string
	lookup        []map[string]int
	handleUnknown string
	fillValue     *string
}

func newOneHotEncoder(columns []string, categories [][]string, handleUnknown string, fillValue *string) *oneHotEncoder {
	lookup := make([]map[string]int, len(categories))
	for i, cats := range categories {
		lookup[i] = make(map[string]int, len(cats))
		for j, c := range cats {
			lookup[i][c] = j
		}
	}
	if handleUnknown == "" {
		handleUnknown = handleUnknownError
	}
	return &oneHotEncoder{
		columns:       columns,
		categories:    categories,
		lookup:        lookup,
		handleUnknown: handleUnknown,
		fillValue:     fillValue,
	}
}

func (e *oneHotEncoder) inputs() []string { return e.columns }

func (e *oneHotEncoder) width(col int) int { return len(e.categories[col]) }

func (e *oneHotEncoder) encode(col int, v Value, dst []float64) error {
	clear(dst)

	var key string
	switch v.Kind {
	case Missing:
		if e.fillValue == nil {
			return fmt.Errorf("input column %q contains NaN", e.columns[col])
		}
		key = *e.fillValue
	case Number:
		key = strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		key = v.Str
	}

	idx, ok := e.lookup[col][key]
	if !ok {
		if e.handleUnknown == handleUnknownIgnore {
			return nil
		}
		return fmt.Errorf("found unknown categories ['%s'] in column %q during transform", key, e.columns[col])
	}
	dst[idx] = 1
	return nil
}

type passthrough struct {
	columns []string
}

func (p *passthrough) inputs() []string { return p.columns }

func (p *passthrough) width(int) int { return 1 }

func (p *passthrough) encode(_ int, v Value, dst []float64) error {
	x, err := numeric(v)
	if err != nil {
		return err
	}
	dst[0] = x
	return nil
}

func numeric(v Value) (float64, error) {
	switch v.Kind {
	case Number:
		return v.Num, nil
	case Missing:
		return math.NaN(), nil
	default:
		x, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert string to float: '%s'", v.Str)
		}
		return x, nil
	}
}

// ColumnTransformer is the preprocessor stage: it selects named columns from
// a table and encodes them into a dense feature matrix.
type ColumnTransformer struct {
	encoders []columnEncoder
	width    int
}

func (ct *ColumnTransformer) InputColumns() []string {
	var names []string
	for _, enc := range ct.encoders {
		names = append(names, enc.inputs()...)
	}
	return names
}

func (ct *ColumnTransformer) OutputWidth() int {
	return ct.width
}

func (ct *ColumnTransformer) Transform(t *Table) (*mat.Dense, error) {
	var missing []string
	for _, name := range ct.InputColumns() {
		if _, ok := t.Column(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, &InferenceError{Stage: PreprocessorStep, Err: fmt.Errorf("columns are missing: %q", missing)}
	}
	if t.Len() == 0 {
		return nil, &InferenceError{Stage: PreprocessorStep, Err: fmt.Errorf("found array with 0 sample(s) while a minimum of 1 is required")}
	}

	features := mat.NewDense(t.Len(), ct.width, nil)
	offset := 0
	for _, enc := range ct.encoders {
		for ci, name := range enc.inputs() {
			col, _ := t.Column(name)
			w := enc.width(ci)
			for r, v := range col.Values {
				dst := features.RawRowView(r)[offset : offset+w]
				if err := enc.encode(ci, v, dst); err != nil {
					return nil, &InferenceError{Stage: PreprocessorStep, Err: err}
				}
			}
			offset += w
		}
	}

	return features, nil
}

package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

type ValueKind uint8

const (
	Missing ValueKind = iota
	Number
	String
)

// Value is a single cell of a request table.
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
}

func NumberValue(v float64) Value { return Value{Kind: Number, Num: v} }

func StringValue(s string) Value { return Value{Kind: String, Str: s} }

func (v Value) String() string {
	switch v.Kind {
	case Number:
		return fmt.Sprint(v.Num)
	case String:
		return v.Str
	default:
		return "nan"
	}
}

type Column struct {
	Name   string
	Values []Value
}

// Table is a row aligned, column ordered view of a request payload.
type Table struct {
	columns []Column
	index   map[string]int
	rows    int
}

var (
	ErrRaggedColumns = errors.New("All arrays must be of the same length")
	ErrScalarColumns = errors.New("If using all scalar values, you must pass an index")
)

func NewTable(columns ...Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(columns)), rows: -1}
	for _, col := range columns {
		if _, ok := t.index[col.Name]; ok {
			return nil, fmt.Errorf("duplicate column %q", col.Name)
		}
		if t.rows >= 0 && len(col.Values) != t.rows {
			return nil, ErrRaggedColumns
		}
		t.rows = len(col.Values)
		t.index[col.Name] = len(t.columns)
		t.columns = append(t.columns, col)
	}
	if t.rows < 0 {
		t.rows = 0
	}
	return t, nil
}

func (t *Table) Len() int {
	return t.rows
}

func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

func (t *Table) Columns() []string {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.Name
	}
	return names
}

// TableFromJSON builds a table from either a columnar object
// ({"col": [v0, v1, ...]}) or an array of row objects ([{"col": v0}, ...]).
// Column order follows the order keys first appear in the payload.
func TableFromJSON(data []byte) (*Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid json payload: %w", err)
	}

	switch tok {
	case json.Delim('{'):
		keys, fields, err := readObject(dec)
		if err != nil {
			return nil, err
		}
		return columnarTable(keys, fields)
	case json.Delim('['):
		return recordsTable(dec)
	default:
		return nil, fmt.Errorf("payload must be a json object or array, got %v", tok)
	}
}

// readObject consumes the members of an object whose opening brace has
// already been read, keeping key order.
func readObject(dec *json.Decoder) ([]string, map[string]json.RawMessage, error) {
	var keys []string
	fields := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("invalid json payload: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("invalid json object key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, fmt.Errorf("invalid value for column %q: %w", key, err)
		}
		if _, seen := fields[key]; !seen {
			keys = append(keys, key)
		}
		fields[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("invalid json payload: %w", err)
	}
	return keys, fields, nil
}

func columnarTable(keys []string, fields map[string]json.RawMessage) (*Table, error) {
	arrays := make(map[string][]Value, len(keys))
	scalars := make(map[string]Value)
	rows := -1

	for _, key := range keys {
		raw := bytes.TrimSpace(fields[key])
		if len(raw) > 0 && raw[0] == '[' {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("invalid values for column %q: %w", key, err)
			}
			values := make([]Value, len(items))
			for i, item := range items {
				v, err := parseValue(item)
				if err != nil {
					return nil, fmt.Errorf("column %q row %d: %w", key, i, err)
				}
				values[i] = v
			}
			if rows >= 0 && rows != len(values) {
				return nil, ErrRaggedColumns
			}
			rows = len(values)
			arrays[key] = values
			continue
		}

		v, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", key, err)
		}
		scalars[key] = v
	}

	if rows < 0 {
		return nil, ErrScalarColumns
	}

	columns := make([]Column, 0, len(keys))
	for _, key := range keys {
		values, ok := arrays[key]
		if !ok {
			// Scalars broadcast across every row.
			values = make([]Value, rows)
			for i := range values {
				values[i] = scalars[key]
			}
		}
		columns = append(columns, Column{Name: key, Values: values})
	}
	return NewTable(columns...)
}

func recordsTable(dec *json.Decoder) (*Table, error) {
	var order []string
	cells := make(map[string][]Value)
	rows := 0

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid json payload: %w", err)
		}
		if tok != json.Delim('{') {
			return nil, fmt.Errorf("row %d: expected an object, got %v", rows, tok)
		}
		keys, fields, err := readObject(dec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rows, err)
		}
		for _, key := range keys {
			v, err := parseValue(fields[key])
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", key, rows, err)
			}
			col, seen := cells[key]
			if !seen {
				order = append(order, key)
				col = make([]Value, rows)
			}
			cells[key] = append(col, v)
		}
		rows++
		// Keys absent from this row are missing.
		for _, key := range order {
			if len(cells[key]) < rows {
				cells[key] = append(cells[key], Value{})
			}
		}
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid json payload: %w", err)
	}

	columns := make([]Column, 0, len(order))
	for _, key := range order {
		columns = append(columns, Column{Name: key, Values: cells[key]})
	}
	return NewTable(columns...)
}

func parseValue(raw json.RawMessage) (Value, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Value{}, err
	}
	switch x := v.(type) {
	case nil:
		return Value{}, nil
	case float64:
		return NumberValue(x), nil
	case string:
		return StringValue(x), nil
	case bool:
		if x {
			return NumberValue(1), nil
		}
		return NumberValue(0), nil
	default:
		return Value{}, fmt.Errorf("unsupported nested value %s", string(raw))
	}
}

// Package data loads the housing dataset and prepares it for training.
package data

import (
	"houseprice/errs"
)

// Schema names the feature columns, in model order, and the target column.
type Schema struct {
	Features []string `json:"features"`
	Target   string   `json:"target"`
}

// BostonHousing is the fixed schema of the selva86 BostonHousing.csv dataset.
var BostonHousing = Schema{
	Features: []string{
		"crim", "zn", "indus", "chas", "nox", "rm", "age",
		"dis", "rad", "tax", "ptratio", "b", "lstat",
	},
	Target: "medv",
}

// Columns returns the features followed by the target.
func (s Schema) Columns() []string {
	cols := make([]string, 0, len(s.Features)+1)
	cols = append(cols, s.Features...)
	return append(cols, s.Target)
}

// Table is an ordered set of rows sharing Columns.
type Table struct {
	Columns []string
	Rows    [][]float64
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Take returns a new table holding the rows at indices, in that order.
// Rows are shared with t, not copied.
func (t *Table) Take(indices []int) *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]float64, len(indices)),
	}
	for i, idx := range indices {
		out.Rows[i] = t.Rows[idx]
	}
	return out
}

// FeatureMatrix holds one feature vector per row.
type FeatureMatrix [][]float64

// TargetVector holds one target value per row.
type TargetVector []float64

// SelectFeaturesAndTarget projects table onto schema. Row i of both results
// comes from row i of table.
func SelectFeaturesAndTarget(table *Table, schema Schema) (FeatureMatrix, TargetVector, error) {
	const op = "select features and target"
	if table == nil {
		return nil, nil, errs.Ef(errs.Schema, op, "nil table")
	}

	featureIdx := make([]int, len(schema.Features))
	for i, name := range schema.Features {
		idx := table.ColumnIndex(name)
		if idx < 0 {
			return nil, nil, errs.Ef(errs.Schema, op, "missing feature column %q", name)
		}
		featureIdx[i] = idx
	}
	targetIdx := table.ColumnIndex(schema.Target)
	if targetIdx < 0 {
		return nil, nil, errs.Ef(errs.Schema, op, "missing target column %q", schema.Target)
	}

	features := make(FeatureMatrix, len(table.Rows))
	target := make(TargetVector, len(table.Rows))
	for r, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return nil, nil, errs.Ef(errs.Schema, op, "row %d has %d values, want %d", r, len(row), len(table.Columns))
		}
		vec := make([]float64, len(featureIdx))
		for i, idx := range featureIdx {
			vec[i] = row[idx]
		}
		features[r] = vec
		target[r] = row[targetIdx]
	}
	return features, target, nil
}

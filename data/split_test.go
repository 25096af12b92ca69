package data

import (
	"errors"
	"math"
	"testing"

	"gotest.tools/v3/assert"

	"houseprice/errs"
)

// numberedTable builds n rows where every column of row i holds i, so the
// original row identity can be read back from any cell.
func numberedTable(n int) *Table {
	columns := BostonHousing.Columns()
	table := &Table{Columns: columns}
	for i := 0; i < n; i++ {
		row := make([]float64, len(columns))
		for j := range row {
			row[j] = float64(i)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func TestSplitTenRows(t *testing.T) {
	train, test, err := Split(numberedTable(10), 0.2, NewRand(42))
	assert.NilError(t, err)
	assert.Equal(t, train.Len(), 8)
	assert.Equal(t, test.Len(), 2)
}

func TestSplitPartitionsRows(t *testing.T) {
	fractions := []float64{0.1, 0.2, 0.25, 0.33, 0.5, 0.9}
	sizes := []int{1, 2, 7, 10, 13, 100, 506}
	for _, n := range sizes {
		for _, f := range fractions {
			table := numberedTable(n)
			train, test, err := Split(table, f, NewRand(int64(n)))
			assert.NilError(t, err)

			assert.Equal(t, train.Len()+test.Len(), n)
			assert.Equal(t, train.Len(), int(math.Ceil(float64(n)*(1-f))))

			seen := make(map[float64]bool, n)
			for _, row := range append(train.Rows, test.Rows...) {
				id := row[0]
				assert.Assert(t, !seen[id], "row %v appears twice (n=%d f=%v)", id, n, f)
				seen[id] = true
			}
			assert.Equal(t, len(seen), n)
		}
	}
}

func TestSplitSeedIsReproducible(t *testing.T) {
	table := numberedTable(50)
	train1, test1, err := Split(table, 0.3, NewRand(7))
	assert.NilError(t, err)
	train2, test2, err := Split(table, 0.3, NewRand(7))
	assert.NilError(t, err)
	assert.DeepEqual(t, train1.Rows, train2.Rows)
	assert.DeepEqual(t, test1.Rows, test2.Rows)
}

func TestSplitDegenerate(t *testing.T) {
	train, test, err := Split(numberedTable(5), 1, NewRand(1))
	assert.NilError(t, err)
	assert.Equal(t, train.Len(), 0)
	assert.Equal(t, test.Len(), 5)

	train, test, err = Split(numberedTable(5), 0, NewRand(1))
	assert.NilError(t, err)
	assert.Equal(t, train.Len(), 5)
	assert.Equal(t, test.Len(), 0)

	train, test, err = Split(&Table{Columns: BostonHousing.Columns()}, 0.2, nil)
	assert.NilError(t, err)
	assert.Equal(t, train.Len(), 0)
	assert.Equal(t, test.Len(), 0)
}

func TestSplitRejectsBadFraction(t *testing.T) {
	for _, f := range []float64{-0.1, 1.5, math.NaN()} {
		_, _, err := Split(numberedTable(3), f, nil)
		assert.Assert(t, errors.Is(err, errs.Invalid), "fraction %v: %v", f, err)
	}
}

func TestSelectFeaturesAndTargetKeepsRowCorrespondence(t *testing.T) {
	table := numberedTable(12)
	train, _, err := Split(table, 0.25, NewRand(3))
	assert.NilError(t, err)

	x, y, err := SelectFeaturesAndTarget(train, BostonHousing)
	assert.NilError(t, err)
	assert.Equal(t, len(x), train.Len())
	assert.Equal(t, len(y), train.Len())
	for i := range x {
		assert.Equal(t, len(x[i]), len(BostonHousing.Features))
		for _, v := range x[i] {
			assert.Equal(t, v, y[i])
		}
		assert.Equal(t, y[i], train.Rows[i][0])
	}
}

func TestSelectFeaturesAndTargetUsesSchemaOrder(t *testing.T) {
	table := &Table{
		Columns: []string{"medv", "b", "a"},
		Rows:    [][]float64{{10, 2, 1}},
	}
	x, y, err := SelectFeaturesAndTarget(table, Schema{Features: []string{"a", "b"}, Target: "medv"})
	assert.NilError(t, err)
	assert.DeepEqual(t, x, FeatureMatrix{{1, 2}})
	assert.DeepEqual(t, y, TargetVector{10})
}

func TestSelectFeaturesAndTargetMissingColumn(t *testing.T) {
	table := &Table{
		Columns: []string{"crim", "medv"},
		Rows:    [][]float64{{1, 2}},
	}
	_, _, err := SelectFeaturesAndTarget(table, BostonHousing)
	assert.Assert(t, errors.Is(err, errs.Schema), "got %v", err)

	_, _, err = SelectFeaturesAndTarget(table, Schema{Features: []string{"crim"}, Target: "price"})
	assert.Assert(t, errors.Is(err, errs.Schema), "got %v", err)
}

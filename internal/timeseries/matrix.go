// Package timeseries resolves the configured grouping of named time series
// into a single aligned numeric matrix for clustering.
package timeseries

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Matrix is an aligned set of named hourly series: rows are the contiguous
// 0-based hour index, columns are series. All columns have identical length
// and no missing entries.
type Matrix struct {
	names []string
	data  *mat.Dense
}

// NewMatrix builds a matrix from named columns. All columns must have the
// same, non-zero length.
func NewMatrix(names []string, cols [][]float64) (*Matrix, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("timeseries: %d names for %d columns", len(names), len(cols))
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("timeseries: no columns")
	}

	rows := len(cols[0])
	if rows == 0 {
		return nil, fmt.Errorf("timeseries: column %q is empty", names[0])
	}
	for i, col := range cols {
		if len(col) != rows {
			return nil, fmt.Errorf("timeseries: column %q has %d rows, expected %d",
				names[i], len(col), rows)
		}
	}

	data := mat.NewDense(rows, len(cols), nil)
	for i, col := range cols {
		data.SetCol(i, col)
	}
	return &Matrix{names: names, data: data}, nil
}

// Rows returns the number of hours.
func (m *Matrix) Rows() int {
	r, _ := m.data.Dims()
	return r
}

// Cols returns the number of series.
func (m *Matrix) Cols() int {
	_, c := m.data.Dims()
	return c
}

// Names returns the series names in column order.
func (m *Matrix) Names() []string {
	return m.names
}

// At returns the value at hour r of column c.
func (m *Matrix) At(r, c int) float64 {
	return m.data.At(r, c)
}

// Col returns a copy of the named column's values.
func (m *Matrix) Col(i int) []float64 {
	return mat.Col(nil, i, m.data)
}

// ColumnIndex returns the column position of a series name.
func (m *Matrix) ColumnIndex(name string) (int, bool) {
	for i, n := range m.names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// Dense exposes the underlying matrix for numeric routines.
func (m *Matrix) Dense() *mat.Dense {
	return m.data
}

// AppendColumns returns a new matrix with extra columns appended on the
// right. Column lengths must match the existing row count.
func (m *Matrix) AppendColumns(names []string, cols [][]float64) (*Matrix, error) {
	allNames := append(append([]string{}, m.names...), names...)
	allCols := make([][]float64, 0, len(allNames))
	for i := range m.names {
		allCols = append(allCols, m.Col(i))
	}
	allCols = append(allCols, cols...)
	return NewMatrix(allNames, allCols)
}

// NumPeriods returns how many whole periods of the given hour length fit in
// the matrix.
func (m *Matrix) NumPeriods(hoursPerPeriod int) int {
	return m.Rows() / hoursPerPeriod
}

// PeriodVector flattens all columns over one period window into a single
// feature vector (column-major: series by series).
func (m *Matrix) PeriodVector(period, hoursPerPeriod int) []float64 {
	start := period * hoursPerPeriod
	vec := make([]float64, 0, hoursPerPeriod*m.Cols())
	for c := 0; c < m.Cols(); c++ {
		for r := start; r < start+hoursPerPeriod; r++ {
			vec = append(vec, m.data.At(r, c))
		}
	}
	return vec
}

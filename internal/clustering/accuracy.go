package clustering

import (
	"math"
	"sort"

	"repdays/internal/timeseries"
)

// SeriesAccuracy reports how well the reduced period set reproduces one
// series over the full horizon.
type SeriesAccuracy struct {
	Series string
	// RMSE compares the original and recreated series hour by hour.
	RMSE float64
	// RMSEDuration compares the two duration curves (values sorted
	// descending), which ignores timing errors and isolates level errors.
	RMSEDuration float64
	// MAE is the mean absolute hourly error.
	MAE float64
}

// Reconstruct builds the full-length approximation of the matrix in which
// every grid slot is replaced by the hours of its representative period.
func Reconstruct(m *timeseries.Matrix, order []int, hoursPerPeriod int) (*timeseries.Matrix, error) {
	cols := make([][]float64, m.Cols())
	for c := range cols {
		col := make([]float64, 0, len(order)*hoursPerPeriod)
		for _, rep := range order {
			start := rep * hoursPerPeriod
			for r := start; r < start+hoursPerPeriod; r++ {
				col = append(col, m.At(r, c))
			}
		}
		cols[c] = col
	}
	return timeseries.NewMatrix(m.Names(), cols)
}

// Accuracy computes per-series indicators between the original matrix and
// its reconstruction. Hours past the reconstructed horizon, the ragged tail
// of a year that does not divide evenly into periods, are covered by no
// representative period and are excluded from the comparison.
func Accuracy(original, recreated *timeseries.Matrix) []SeriesAccuracy {
	horizon := recreated.Rows()
	if original.Rows() < horizon {
		horizon = original.Rows()
	}

	out := make([]SeriesAccuracy, original.Cols())
	for c := 0; c < original.Cols(); c++ {
		orig := original.Col(c)[:horizon]
		rec := recreated.Col(c)[:horizon]

		out[c] = SeriesAccuracy{
			Series:       original.Names()[c],
			RMSE:         rmse(orig, rec),
			RMSEDuration: rmse(durationCurve(orig), durationCurve(rec)),
			MAE:          mae(orig, rec),
		}
	}
	return out
}

func rmse(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(a)))
}

func mae(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += math.Abs(a[i] - b[i])
	}
	return sum / float64(len(a))
}

func durationCurve(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	return sorted
}

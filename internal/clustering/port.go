// Package clustering selects representative periods from a full-length
// time-series matrix and measures how well the reduced set reproduces it.
package clustering

import (
	"context"

	"repdays/internal/timeseries"
)

// Request describes one aggregation call: reduce the matrix to NumClusters
// freely chosen representative periods on top of the pinned Forced indices,
// and realize the requested extreme periods.
type Request struct {
	Matrix         *timeseries.Matrix
	NumClusters    int
	HoursPerPeriod int
	Method         string
	// Forced period indices are always part of the representative set.
	Forced []int
	// Extremes maps a criterion name to the series it applies to.
	Extremes map[string][]string
}

// ExtremeRealization records which period index realized one extreme request.
type ExtremeRealization struct {
	Criterion string
	Series    string
	Index     int
}

// Result is the aggregation outcome. Centers lists representative period
// indices in selection order: forced first, then freely chosen, then extreme
// realizations that were not already centers. Occurrences counts how many
// grid slots each center stands in for, and Order maps every grid slot to its
// representative period index.
type Result struct {
	Centers     []int
	Occurrences map[int]float64
	Extremes    []ExtremeRealization
	Order       []int
}

// Aggregator reduces a year of aligned series to representative periods.
// Implementations must honour pinned forced indices and realize every extreme
// request, and must be safe for sequential reuse across period counts.
type Aggregator interface {
	Aggregate(ctx context.Context, req Request) (*Result, error)
}

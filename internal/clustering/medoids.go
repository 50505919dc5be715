package clustering

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"repdays/internal/config"
	apperrors "repdays/internal/errors"
	"repdays/internal/timeseries"
)

// Medoids is the built-in Aggregator: greedy k-medoids over standardized
// per-period feature vectors. Forced indices are pinned as centers before any
// free center is chosen; extreme realizations that are not already centers
// are appended afterwards. Ties resolve to the lowest period index so the
// selection is deterministic.
type Medoids struct {
	Logger *slog.Logger
}

// Aggregate implements Aggregator.
func (a *Medoids) Aggregate(ctx context.Context, req Request) (*Result, error) {
	const op = "clustering.Medoids.Aggregate"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	numPeriods := req.Matrix.NumPeriods(req.HoursPerPeriod)
	if numPeriods == 0 {
		return nil, apperrors.Newf(apperrors.CodeInvalidConfig, op,
			"matrix of %d hours holds no whole %d-hour period", req.Matrix.Rows(), req.HoursPerPeriod)
	}

	vectors := standardizedVectors(req.Matrix, req.HoursPerPeriod, numPeriods)

	centers := make([]int, 0, len(req.Forced)+req.NumClusters)
	inSet := make(map[int]bool, cap(centers))
	for _, idx := range req.Forced {
		if idx < 0 || idx >= numPeriods {
			return nil, apperrors.Newf(apperrors.CodeInvalidConfig, op,
				"forced period index %d outside grid of %d periods", idx, numPeriods)
		}
		if !inSet[idx] {
			inSet[idx] = true
			centers = append(centers, idx)
		}
	}

	// Greedy build: each round adds the candidate that most reduces the total
	// distance of all periods to their nearest center.
	nearest := make([]float64, numPeriods)
	for p := range nearest {
		nearest[p] = math.Inf(1)
		for _, c := range centers {
			if d := floats.Distance(vectors[p], vectors[c], 2); d < nearest[p] {
				nearest[p] = d
			}
		}
	}
	for k := 0; k < req.NumClusters; k++ {
		best, bestCost := -1, math.Inf(1)
		for cand := 0; cand < numPeriods; cand++ {
			if inSet[cand] {
				continue
			}
			cost := 0.0
			for p := 0; p < numPeriods; p++ {
				d := floats.Distance(vectors[p], vectors[cand], 2)
				cost += math.Min(d, nearest[p])
			}
			if cost < bestCost {
				best, bestCost = cand, cost
			}
		}
		if best < 0 {
			break
		}
		inSet[best] = true
		centers = append(centers, best)
		for p := 0; p < numPeriods; p++ {
			if d := floats.Distance(vectors[p], vectors[best], 2); d < nearest[p] {
				nearest[p] = d
			}
		}
	}

	realizations, err := realizeExtremes(req, numPeriods)
	if err != nil {
		return nil, err
	}
	for _, r := range realizations {
		if !inSet[r.Index] {
			inSet[r.Index] = true
			centers = append(centers, r.Index)
		}
	}

	order := make([]int, numPeriods)
	occurrences := make(map[int]float64, len(centers))
	for p := 0; p < numPeriods; p++ {
		best, bestDist := centers[0], math.Inf(1)
		for _, c := range centers {
			if d := floats.Distance(vectors[p], vectors[c], 2); d < bestDist {
				best, bestDist = c, d
			}
		}
		order[p] = best
		occurrences[best]++
	}

	if a.Logger != nil {
		a.Logger.Debug("aggregation complete",
			slog.String("method", req.Method),
			slog.Int("periods", numPeriods),
			slog.Int("centers", len(centers)),
			slog.Int("forced", len(req.Forced)),
			slog.Int("extremes", len(realizations)))
	}

	return &Result{
		Centers:     centers,
		Occurrences: occurrences,
		Extremes:    realizations,
		Order:       order,
	}, nil
}

// standardizedVectors flattens every period window into a feature vector and
// z-scores each dimension across periods. Constant dimensions keep deviation
// 1 so they contribute nothing to distances without producing NaN.
func standardizedVectors(m *timeseries.Matrix, hoursPerPeriod, numPeriods int) [][]float64 {
	vectors := make([][]float64, numPeriods)
	for p := 0; p < numPeriods; p++ {
		vectors[p] = m.PeriodVector(p, hoursPerPeriod)
	}

	dims := len(vectors[0])
	column := make([]float64, numPeriods)
	for d := 0; d < dims; d++ {
		for p := 0; p < numPeriods; p++ {
			column[p] = vectors[p][d]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for p := 0; p < numPeriods; p++ {
			vectors[p][d] = (vectors[p][d] - mean) / std
		}
	}
	return vectors
}

// realizeExtremes resolves every extreme request to a concrete period index.
// Criteria are processed in sorted name order and series in their configured
// order so repeated runs realize the same sequence.
func realizeExtremes(req Request, numPeriods int) ([]ExtremeRealization, error) {
	const op = "clustering.realizeExtremes"

	criteria := make([]string, 0, len(req.Extremes))
	for criterion := range req.Extremes {
		criteria = append(criteria, criterion)
	}
	sort.Strings(criteria)

	var out []ExtremeRealization
	for _, criterion := range criteria {
		for _, series := range req.Extremes[criterion] {
			col, ok := req.Matrix.ColumnIndex(series)
			if !ok {
				return nil, apperrors.Newf(apperrors.CodeMissingSeries, op,
					"extreme criterion %s references unknown series %q", criterion, series)
			}

			index, err := extremeIndex(req, criterion, col, numPeriods)
			if err != nil {
				return nil, err
			}
			out = append(out, ExtremeRealization{Criterion: criterion, Series: series, Index: index})
		}
	}
	return out, nil
}

func extremeIndex(req Request, criterion string, col, numPeriods int) (int, error) {
	best := 0
	bestVal := math.Inf(1)
	wantMax := criterion == config.CriterionMaxPeak || criterion == config.CriterionMaxMean
	if wantMax {
		bestVal = math.Inf(-1)
	}

	for p := 0; p < numPeriods; p++ {
		start := p * req.HoursPerPeriod
		var val float64
		switch criterion {
		case config.CriterionMaxPeak, config.CriterionMinPeak:
			val = req.Matrix.At(start, col)
			for r := start + 1; r < start+req.HoursPerPeriod; r++ {
				v := req.Matrix.At(r, col)
				if (wantMax && v > val) || (!wantMax && v < val) {
					val = v
				}
			}
		case config.CriterionMaxMean, config.CriterionMinMean:
			sum := 0.0
			for r := start; r < start+req.HoursPerPeriod; r++ {
				sum += req.Matrix.At(r, col)
			}
			val = sum / float64(req.HoursPerPeriod)
		default:
			return 0, apperrors.Newf(apperrors.CodeInvalidConfig,
				"clustering.extremeIndex", "unknown extreme criterion %q", criterion)
		}

		if (wantMax && val > bestVal) || (!wantMax && val < bestVal) {
			best, bestVal = p, val
		}
	}
	return best, nil
}

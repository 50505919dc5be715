package clustering

import (
	"context"
	"log/slog"

	"repdays/internal/config"
	apperrors "repdays/internal/errors"
	"repdays/internal/periods"
	"repdays/internal/timeseries"
)

// Engine turns one aggregation call into a labelled, weighted representative
// period set. It owns forced-period bookkeeping, extreme reconciliation and
// accuracy measurement; the numeric reduction itself goes through the
// Aggregator port.
type Engine struct {
	Cfg    *config.Config
	Codec  periods.Codec
	Agg    Aggregator
	Logger *slog.Logger
	// FeaturePeriods holds period indices produced by custom feature rules.
	// They are pinned alongside force_days and force_periods.
	FeaturePeriods []int
}

// Selection is the outcome of selecting representative periods for one
// period count.
type Selection struct {
	// Requested is the period count that was asked for. The achieved count,
	// len(Set), can be lower when an extreme realization collides with an
	// already selected period.
	Requested int
	// Set holds the representative periods ordered by label. Weights are
	// calendar-day occurrence counts.
	Set periods.Set
	// Slots maps every grid slot, in chronological order, to the label of the
	// period standing in for it.
	Slots []string
	// Reconstructed is the approximation built from Slots. It spans every
	// whole period; trailing hours of a ragged year are not covered.
	Reconstructed *timeseries.Matrix
	// Accuracy holds per-series indicators of the reconstruction.
	Accuracy []SeriesAccuracy
}

// Select reduces the matrix to nPeriods representative periods.
func (e *Engine) Select(ctx context.Context, m *timeseries.Matrix, nPeriods int) (*Selection, error) {
	const op = "clustering.Engine.Select"

	numPeriods := m.NumPeriods(e.Cfg.HoursPerPeriod())
	forced, err := e.forcedIndices(numPeriods)
	if err != nil {
		return nil, err
	}

	nClusters := nPeriods - len(forced) - e.Cfg.ExtremeRequestCount()
	if nClusters < 1 {
		return nil, apperrors.Newf(apperrors.CodeInfeasiblePeriods, op,
			"%d periods leave no room for clustering after %d forced and %d extreme periods",
			nPeriods, len(forced), e.Cfg.ExtremeRequestCount())
	}

	res, err := e.Agg.Aggregate(ctx, Request{
		Matrix:         m,
		NumClusters:    nClusters,
		HoursPerPeriod: e.Cfg.HoursPerPeriod(),
		Method:         e.Cfg.ClusteringMethod,
		Forced:         forced,
		Extremes:       e.Cfg.ExtremePeriods,
	})
	if err != nil {
		return nil, err
	}

	// Centers before the extreme suffix were selected on their own merit; an
	// extreme realization landing on one of them is absorbed and the achieved
	// period count drops.
	prefixLen := len(forced) + nClusters
	if prefixLen > len(res.Centers) {
		prefixLen = len(res.Centers)
	}
	prefix := make(map[int]bool, prefixLen)
	for _, idx := range res.Centers[:prefixLen] {
		prefix[idx] = true
	}
	extremeSuffix := make(map[int]bool)
	for _, idx := range res.Centers[prefixLen:] {
		extremeSuffix[idx] = true
	}
	for _, r := range res.Extremes {
		if prefix[r.Index] {
			e.Logger.Warn("extreme period absorbed by an already selected period",
				slog.String("criterion", r.Criterion),
				slog.String("series", r.Series),
				slog.String("period", e.Codec.Encode(r.Index)))
		}
	}

	forcedSet := make(map[int]bool, len(forced))
	for _, idx := range forced {
		forcedSet[idx] = true
	}

	set := make(periods.Set, 0, len(res.Centers))
	for _, idx := range res.Centers {
		kind := periods.KindTypical
		switch {
		case forcedSet[idx]:
			kind = periods.KindForced
		case extremeSuffix[idx]:
			kind = periods.KindExtreme
		}
		set = append(set, periods.Period{
			Index:  idx,
			Label:  e.Codec.Encode(idx),
			Weight: res.Occurrences[idx] * float64(e.Cfg.DaysPerPeriod),
			Kind:   kind,
		})
	}
	set = set.SortByLabel()
	if err := set.Validate(); err != nil {
		return nil, err
	}

	slots := make([]string, len(res.Order))
	for i, rep := range res.Order {
		slots[i] = e.Codec.Encode(rep)
	}

	recreated, err := Reconstruct(m, res.Order, e.Cfg.HoursPerPeriod())
	if err != nil {
		return nil, err
	}

	if len(set) < nPeriods {
		e.Logger.Warn("representative set smaller than requested",
			slog.Int("requested", nPeriods),
			slog.Int("achieved", len(set)))
	}
	e.Logger.Info("representative periods selected",
		slog.Int("requested", nPeriods),
		slog.Int("achieved", len(set)),
		slog.Float64("total_weight", set.TotalWeight()))

	return &Selection{
		Requested:     nPeriods,
		Set:           set,
		Slots:         slots,
		Reconstructed: recreated,
		Accuracy:      Accuracy(m, recreated),
	}, nil
}

// forcedIndices merges force_days, force_periods and feature rule results
// into one de-duplicated index list, keeping first occurrences in order.
func (e *Engine) forcedIndices(numPeriods int) ([]int, error) {
	const op = "clustering.Engine.forcedIndices"

	var merged []int
	for _, day := range e.Cfg.ForceDays {
		merged = append(merged, (day+e.Cfg.DayToIndex)/e.Cfg.DaysPerPeriod)
	}
	merged = append(merged, e.Cfg.ForcePeriods...)
	merged = append(merged, e.FeaturePeriods...)

	seen := make(map[int]bool, len(merged))
	out := make([]int, 0, len(merged))
	for _, idx := range merged {
		if idx < 0 || idx >= numPeriods {
			return nil, apperrors.Newf(apperrors.CodeInvalidConfig, op,
				"forced period index %d outside grid of %d periods", idx, numPeriods)
		}
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out, nil
}

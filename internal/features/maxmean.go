// Package features computes forced period indices from declarative feature
// rules and optional principal-component enrichment of the clustering matrix.
package features

import (
	"log/slog"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/stat"

	apperrors "repdays/internal/errors"
	"repdays/internal/timeseries"
)

// MaxMeanPeriods returns the clustering-grid period indices spanned by the
// daysInPeriod-day window with the highest mean value of the named series.
//
// The window mean covers hours [start, start+24*daysInPeriod-1): the final
// hour of each window is excluded, matching the established selection
// behaviour. Strict maximum, first occurrence wins.
//
// A window length that is not a whole multiple of the clustering grid's
// days-per-period would misalign window and period boundaries; the rule is
// skipped with a warning and no indices are produced.
func MaxMeanPeriods(logger *slog.Logger, timeseriesDir, series string, daysInPeriod, daysPerPeriod int) ([]int, error) {
	const op = "features.MaxMeanPeriods"

	if daysInPeriod%daysPerPeriod != 0 {
		logger.Warn("feature period length does not fit neatly over typical periods, feature skipped",
			slog.String("series", series),
			slog.Int("days_in_period", daysInPeriod),
			slog.Int("days_per_period", daysPerPeriod))
		return nil, nil
	}
	periodsPerWindow := daysInPeriod / daysPerPeriod

	path := filepath.Join(timeseriesDir, series+".csv")
	_, cols, err := timeseries.LoadSeriesFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrapf(apperrors.CodeMissingSeries, op, err, "series %q", series)
		}
		return nil, apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	values := cols[0]

	windowHours := 24 * daysInPeriod
	totalWindows := len(values) / windowHours

	maxMean := 0.0
	maxIndex := 0
	for w := 0; w < totalWindows; w++ {
		start := windowHours * w
		end := start + windowHours - 1
		mean := stat.Mean(values[start:end], nil)
		if mean > maxMean {
			maxMean = mean
			maxIndex = w
		}
	}

	indices := make([]int, 0, periodsPerWindow)
	for i := 0; i < periodsPerWindow; i++ {
		indices = append(indices, periodsPerWindow*maxIndex+i)
	}

	logger.Debug("max mean feature window selected",
		slog.String("series", series),
		slog.Int("window", maxIndex),
		slog.Float64("mean", maxMean))

	return indices, nil
}

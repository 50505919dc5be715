// Package app orchestrates the two pipeline stages: selecting representative
// periods from the configured time series and remapping the target databases
// onto them.
package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"repdays/internal/clustering"
	"repdays/internal/config"
	"repdays/internal/database"
	apperrors "repdays/internal/errors"
	"repdays/internal/export"
	"repdays/internal/features"
	"repdays/internal/infrastructure"
	"repdays/internal/periods"
	"repdays/internal/timeseries"
)

// App wires the pipeline's components from one configuration.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	agg    clustering.Aggregator
	// Parallel bounds concurrent database rewrites during Remap.
	Parallel int
}

// New builds an App with the built-in aggregator.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:      cfg,
		logger:   logger,
		agg:      &clustering.Medoids{Logger: logger},
		Parallel: 1,
	}
}

// Cluster collects the configured series, selects representative periods for
// every tested count and writes the inspection artifacts. The canonical
// handoff artifacts are written only for the configured final count.
func (a *App) Cluster(ctx context.Context) error {
	ctx, span := infrastructure.Tracer().Start(ctx, "cluster")
	defer span.End()

	logger := a.logger.With(slog.String("run_id", uuid.NewString()))
	logger.Info("starting period selection", slog.String("config", a.cfg.String()))

	matrix, err := a.collect(logger)
	if err != nil {
		return err
	}

	engine := &clustering.Engine{
		Cfg:            a.cfg,
		Codec:          periods.Codec{DaysPerPeriod: a.cfg.DaysPerPeriod, DayOffset: a.cfg.DayToIndex},
		Agg:            a.agg,
		Logger:         logger,
		FeaturePeriods: a.featurePeriods(logger),
	}

	if err := os.MkdirAll(a.cfg.Paths.OutputDataDir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, "app.Cluster", err)
	}
	writer := &export.CSVWriter{Root: a.cfg.Paths.OutputDataDir, Logger: logger}
	workbook, err := export.NewWorkbook(logger)
	if err != nil {
		return err
	}

	for _, n := range a.cfg.PeriodCounts() {
		sel, err := engine.Select(ctx, matrix, n)
		if apperrors.HasCode(err, apperrors.CodeInfeasiblePeriods) {
			logger.Warn("period count infeasible, skipped",
				slog.Int("periods", n),
				slog.String("reason", err.Error()))
			continue
		}
		if err != nil {
			return err
		}

		if err := writer.WriteSelection(sel, matrix, a.cfg.ClusteringMethod, a.cfg.HoursPerPeriod()); err != nil {
			return err
		}
		if err := workbook.AddSelection(sel); err != nil {
			return err
		}

		if n == a.cfg.FinalPeriods {
			store := a.store()
			if err := store.SavePeriods(sel.Set); err != nil {
				return err
			}
			if err := store.SaveSequence(sel.Slots); err != nil {
				return err
			}
			logger.Info("canonical handoff artifacts written",
				slog.String("periods", store.PeriodsPath),
				slog.String("sequence", store.SequencePath))
		}
	}

	return workbook.Save(filepath.Join(a.cfg.Paths.OutputDataDir, "summary.xlsx"))
}

// Remap loads the handoff artifacts and rewrites every discovered database.
func (a *App) Remap(ctx context.Context) error {
	ctx, span := infrastructure.Tracer().Start(ctx, "remap")
	defer span.End()

	set, seq, err := a.loadHandoff()
	if err != nil {
		return err
	}

	proc := database.NewProcessor(a.cfg, a.logger)
	proc.Parallel = a.Parallel
	_, err = proc.ProcessAll(ctx, set, seq)
	return err
}

// RemapDatabase rewrites a single named database against the persisted
// handoff artifacts.
func (a *App) RemapDatabase(ctx context.Context, path string) error {
	ctx, span := infrastructure.Tracer().Start(ctx, "remap")
	defer span.End()

	set, seq, err := a.loadHandoff()
	if err != nil {
		return err
	}
	proc := database.NewProcessor(a.cfg, a.logger)
	return proc.ProcessPath(ctx, path, set, seq)
}

// Run chains Cluster and Remap.
func (a *App) Run(ctx context.Context) error {
	if err := a.Cluster(ctx); err != nil {
		return err
	}
	return a.Remap(ctx)
}

// collect resolves the configured grouping into the clustering matrix and
// appends any configured principal-component columns.
func (a *App) collect(logger *slog.Logger) (*timeseries.Matrix, error) {
	tree, err := timeseries.ParseGrouping(a.cfg.Timeseries)
	if err != nil {
		return nil, err
	}

	collector := &timeseries.Collector{Root: a.cfg.Paths.TimeseriesDir, Logger: logger}
	matrix, err := collector.Collect(tree)
	if err != nil {
		return nil, err
	}
	logger.Info("collected time series",
		slog.Int("series", matrix.Cols()),
		slog.Int("hours", matrix.Rows()))

	for _, group := range a.cfg.PCAGroups {
		scale := group.Scale == nil || *group.Scale
		names, cols, err := features.PrincipalComponents(logger, matrix, features.PCAGroup{
			Name:        group.Name,
			Columns:     group.Columns,
			NComponents: group.NComponents,
			Scale:       scale,
		})
		if err != nil {
			logger.Warn("pca group skipped",
				slog.String("group", group.Name),
				slog.String("error", err.Error()))
			continue
		}
		matrix, err = matrix.AppendColumns(names, cols)
		if err != nil {
			return nil, err
		}
	}
	return matrix, nil
}

// featurePeriods evaluates the custom feature rules. A rule that cannot be
// evaluated is skipped with a warning; the run continues without it.
func (a *App) featurePeriods(logger *slog.Logger) []int {
	var indices []int
	for _, rule := range a.cfg.CustomFeatures {
		found, err := features.MaxMeanPeriods(logger, a.cfg.Paths.TimeseriesDir,
			rule.Timeseries, rule.DaysInPeriod, a.cfg.DaysPerPeriod)
		if err != nil {
			logger.Warn("custom feature skipped",
				slog.String("timeseries", rule.Timeseries),
				slog.String("error", err.Error()))
			continue
		}
		indices = append(indices, found...)
	}
	return indices
}

// loadHandoff reads the period set and slot sequence written by Cluster. The
// sequence is optional; without it sequential reconstruction is disabled.
func (a *App) loadHandoff() (periods.Set, periods.Sequence, error) {
	store := a.store()
	set, err := store.LoadPeriods()
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeIO, "app.loadHandoff", err)
	}
	set = set.Normalize()
	if a.cfg.DisaggregateMultiday && a.cfg.DaysPerPeriod > 1 {
		set, err = set.Disaggregate()
		if err != nil {
			return nil, nil, err
		}
	}

	var seq periods.Sequence
	if slots, err := store.LoadSequence(); err == nil {
		seq = periods.Collapse(slots)
	} else {
		a.logger.Debug("no sequence artifact, sequential reconstruction disabled",
			slog.String("error", err.Error()))
	}
	return set, seq, nil
}

func (a *App) store() periods.Store {
	return periods.Store{
		PeriodsPath:  a.cfg.Paths.PeriodsFile,
		SequencePath: a.cfg.Paths.SequenceFile,
	}
}

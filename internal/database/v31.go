package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"repdays/internal/config"
	apperrors "repdays/internal/errors"
	"repdays/internal/periods"
)

// v31Adapter rewrites version 3.1 databases. The 3.1 schema keys its time
// structure and demand distributions with the model-year period, carries the
// full season set per model year and stores distribution mass as an absolute
// annual contribution, so the rewrite differs enough from the earlier
// dialects to stand alone.
type v31Adapter struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewV31Adapter rewrites version 3.1 databases.
func NewV31Adapter(cfg *config.Config, logger *slog.Logger) Adapter {
	return &v31Adapter{cfg: cfg, logger: logger}
}

func (a *v31Adapter) Name() string { return "v3.1" }

func (a *v31Adapter) Claims(v Version) bool { return v == Version{3, 1} }

func (a *v31Adapter) Apply(ctx context.Context, sourcePath, outputPath string, set periods.Set, seq periods.Sequence) error {
	const op = "database.v31Adapter.Apply"

	if a.cfg.DaysPerPeriod > 1 && !a.cfg.DisaggregateMultiday {
		a.logger.Warn("multi-day periods are not representable in the 3.1 schema, database skipped",
			slog.String("database", sourcePath),
			slog.String("hint", "enable disaggregate_multiday"))
		return nil
	}

	if err := copyDatabase(sourcePath, outputPath); err != nil {
		return err
	}
	db, err := openDatabase(outputPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}

	err = a.rewrite(tx, set, seq)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}

	return finish(db, outputPath, a.logger)
}

func (a *v31Adapter) rewrite(tx *sql.Tx, set periods.Set, seq periods.Sequence) error {
	const op = "database.v31Adapter.rewrite"

	labels := set.Labels()
	for _, table := range v31SeasonTables {
		exists, err := tableExists(tx, table)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
		if !exists {
			continue
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE season NOT IN (%s)", table, placeholders(len(labels)))
		if _, err := tx.Exec(query, asAny(labels)...); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}

	// Distribution mass becomes an absolute annual contribution: the
	// period's share of the year times the 365 calendar days it spreads
	// over. Renormalization per group follows below.
	for _, p := range set {
		_, err := tx.Exec(
			"UPDATE DemandSpecificDistribution SET dsd = dsd * ? * 365 WHERE season = ?",
			p.Weight, p.Label)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}

	if err := a.rebuildTimeStructure(tx, set); err != nil {
		return err
	}
	if err := a.rebuildSequential(tx, seq); err != nil {
		return err
	}
	return a.renormalize(tx)
}

// rebuildTimeStructure replaces the per-model-year season list and segment
// fractions with the representative set.
func (a *v31Adapter) rebuildTimeStructure(tx *sql.Tx, set periods.Set) error {
	const op = "database.v31Adapter.rebuildTimeStructure"

	for _, table := range []string{"TimeSeason", "TimeSegmentFraction"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}

	hours := periods.HourLabels(24)
	for _, year := range a.cfg.ModelYears {
		for i, p := range set {
			for _, hour := range hours {
				_, err := tx.Exec(
					"REPLACE INTO TimeSegmentFraction(period, season, tod, segfrac, notes) VALUES(?, ?, ?, ?, ?)",
					year, p.Label, hour, p.Weight/24, segFracNote)
				if err != nil {
					return apperrors.Wrap(apperrors.CodeIO, op, err)
				}
			}
			_, err := tx.Exec(
				"REPLACE INTO TimeSeason(period, sequence, season) VALUES(?, ?, ?)",
				year, i, p.Label)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeIO, op, err)
			}
		}
	}
	return nil
}

// rebuildSequential writes the chronological day-to-period assignment for
// every model year, enabling storage and ramping constraints to see the
// original day ordering. The table is optional and skipped when absent or
// when no sequence was persisted.
func (a *v31Adapter) rebuildSequential(tx *sql.Tx, seq periods.Sequence) error {
	const op = "database.v31Adapter.rebuildSequential"

	if len(seq) == 0 {
		return nil
	}
	exists, err := tableExists(tx, "TimeSeasonSequential")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	if !exists {
		return nil
	}

	slots := seq.Slots()
	if a.cfg.DisaggregateMultiday && a.cfg.DaysPerPeriod > 1 {
		var daily []string
		for _, label := range slots {
			days, err := periods.Expand(label)
			if err != nil {
				return err
			}
			daily = append(daily, days...)
		}
		slots = daily
	}

	if _, err := tx.Exec("DELETE FROM TimeSeasonSequential"); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	for _, year := range a.cfg.ModelYears {
		for i, label := range slots {
			_, err := tx.Exec(
				"REPLACE INTO TimeSeasonSequential(period, sequence, season) VALUES(?, ?, ?)",
				year, i, label)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeIO, op, err)
			}
		}
	}
	return nil
}

// renormalize rescales every (period, region, demand) distribution group to
// sum to 1, after optionally trimming negligible entries, and propagates the
// pre-normalization mass into annual demand totals when absolute hourly
// preservation is configured.
func (a *v31Adapter) renormalize(tx *sql.Tx) error {
	const op = "database.v31Adapter.renormalize"

	rows, err := tx.Query(
		"SELECT period, region, demand_name, SUM(dsd), COUNT(*) FROM DemandSpecificDistribution GROUP BY period, region, demand_name")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	groups, err := scanGroups(rows, true)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}

	for _, g := range groups {
		total := g.Total

		if a.cfg.DSDThreshold > 0 && total > 0 {
			total, err = a.trimGroup(tx, g)
			if err != nil {
				return err
			}
		}

		if total == 0 {
			a.logger.Warn("demand distribution group has zero mass, applying flatline fallback",
				slog.String("period", g.Period),
				slog.String("region", g.Region),
				slog.String("demand", g.Demand))
			_, err = tx.Exec(
				"UPDATE DemandSpecificDistribution SET dsd = ? WHERE period = ? AND region = ? AND demand_name = ?",
				1.0/float64(g.Count), g.Period, g.Region, g.Demand)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeIO, op, err)
			}
			continue
		}

		_, err = tx.Exec(
			"UPDATE DemandSpecificDistribution SET dsd = dsd / ? WHERE period = ? AND region = ? AND demand_name = ?",
			total, g.Period, g.Region, g.Demand)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}

		if a.cfg.DemandPreservation == config.DemandPreserveHourly {
			_, err = tx.Exec(
				"UPDATE Demand SET demand = demand * ? WHERE region = ? AND commodity = ? AND period = ?",
				total, g.Region, g.Demand, g.Period)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeIO, op, err)
			}
		}
	}
	return nil
}

// trimGroup zeroes the group's smallest entries whose cumulative share stays
// strictly below the configured threshold. Entries tied with the first
// retained value are all kept, so a tie across the boundary is never
// partially trimmed. Returns the group's remaining mass.
func (a *v31Adapter) trimGroup(tx *sql.Tx, g dsdGroup) (float64, error) {
	const op = "database.v31Adapter.trimGroup"

	rows, err := tx.Query(
		"SELECT dsd FROM DemandSpecificDistribution WHERE period = ? AND region = ? AND demand_name = ?",
		g.Period, g.Region, g.Demand)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, apperrors.Wrap(apperrors.CodeIO, op, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	rows.Close()

	sort.Float64s(values)
	trimmed := 0
	cumulative := 0.0
	for _, v := range values {
		cumulative += v / g.Total
		if cumulative < a.cfg.DSDThreshold {
			trimmed++
		} else {
			break
		}
	}
	if trimmed == 0 {
		return g.Total, nil
	}
	cutoff := values[trimmed]

	res, err := tx.Exec(
		"UPDATE DemandSpecificDistribution SET dsd = 0 WHERE period = ? AND region = ? AND demand_name = ? AND dsd < ? AND dsd > 0",
		g.Period, g.Region, g.Demand, cutoff)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	zeroed, _ := res.RowsAffected()

	remaining := g.Total
	for _, v := range values[:trimmed] {
		if v < cutoff {
			remaining -= v
		}
	}
	a.logger.Debug("trimmed negligible distribution entries",
		slog.String("period", g.Period),
		slog.String("region", g.Region),
		slog.String("demand", g.Demand),
		slog.Int64("zeroed", zeroed))
	return remaining, nil
}

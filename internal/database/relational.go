package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"repdays/internal/config"
	apperrors "repdays/internal/errors"
	"repdays/internal/periods"
)

// relationalAdapter rewrites the legacy and v3 dialects. The two schemas
// share the rewrite algorithm and differ only in identifiers, so one
// implementation serves both through the dialect registry.
type relationalAdapter struct {
	dialect Dialect
	version Version
	cfg     *config.Config
	logger  *slog.Logger
}

// NewLegacyAdapter rewrites unversioned databases (no MetaData table).
func NewLegacyAdapter(cfg *config.Config, logger *slog.Logger) Adapter {
	return &relationalAdapter{dialect: legacyDialect, version: Version{0, 0}, cfg: cfg, logger: logger}
}

// NewV3Adapter rewrites version 3.0 databases.
func NewV3Adapter(cfg *config.Config, logger *slog.Logger) Adapter {
	return &relationalAdapter{dialect: v3Dialect, version: Version{3, 0}, cfg: cfg, logger: logger}
}

func (a *relationalAdapter) Name() string { return a.dialect.Name }

func (a *relationalAdapter) Claims(v Version) bool { return v == a.version }

func (a *relationalAdapter) Apply(ctx context.Context, sourcePath, outputPath string, set periods.Set, seq periods.Sequence) error {
	const op = "database.relationalAdapter.Apply"

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

	hours := periods.HourLabels(a.cfg.OutputHours())
	if a.cfg.DaysPerPeriod == 1 || a.cfg.DisaggregateMultiday {
		err = a.rewriteSingleDay(tx, set, hours)
	} else {
		err = a.rewriteMultiday(tx, set, hours)
	}
	if err == nil {
		err = renormalizeFlat(tx, a.dialect, outputPath, a.logger)
	}
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}

	return finish(db, outputPath, a.logger)
}

func (a *relationalAdapter) rewriteSingleDay(tx *sql.Tx, set periods.Set, hours []string) error {
	const op = "database.relationalAdapter.rewriteSingleDay"
	d := a.dialect

	for _, table := range []string{d.SeasonTable, d.SegFracTable} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}

	insertSeason := fmt.Sprintf("INSERT INTO %s(%s) VALUES(?)", d.SeasonTable, d.SeasonKeyColumn)
	insertSegFrac := fmt.Sprintf("REPLACE INTO %s(%s, %s, %s, %s) VALUES(?, ?, ?, ?)",
		d.SegFracTable, d.SegFracSeasonColumn, d.SegFracTodColumn, d.SegFracValueColumn, d.SegFracNotesColumn)
	scaleDSD := fmt.Sprintf("UPDATE DemandSpecificDistribution SET dsd = dsd * ? WHERE %s = ?", d.SeasonColumn)

	for _, p := range set {
		if _, err := tx.Exec(insertSeason, p.Label); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
		for _, hour := range hours {
			if _, err := tx.Exec(insertSegFrac, p.Label, hour, p.Weight/float64(len(hours)), segFracNote); err != nil {
				return apperrors.Wrap(apperrors.CodeIO, op, err)
			}
		}
		if _, err := tx.Exec(scaleDSD, p.Weight, p.Label); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}

	return a.dropOrphanSeasons(tx)
}

func (a *relationalAdapter) rewriteMultiday(tx *sql.Tx, set periods.Set, hours []string) error {
	const op = "database.relationalAdapter.rewriteMultiday"
	d := a.dialect

	for _, table := range []string{d.SeasonTable, d.TimeOfDayTable, d.SegFracTable} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}
	insertHour := fmt.Sprintf("INSERT INTO %s(%s) VALUES(?)", d.TimeOfDayTable, d.TimeOfDayKeyColumn)
	for _, hour := range hours {
		if _, err := tx.Exec(insertHour, hour); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}

	// Clear every day that no representative period covers before folding.
	var allDays []string
	for _, p := range set {
		days, err := periods.Expand(p.Label)
		if err != nil {
			return err
		}
		allDays = append(allDays, days...)
	}
	for _, table := range d.SeasonTables {
		exists, err := tableExists(tx, table)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
		if !exists {
			continue
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE %s NOT IN (%s)",
			table, d.SeasonColumn, placeholders(len(allDays)))
		if _, err := tx.Exec(query, asAny(allDays)...); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}

	insertSeason := fmt.Sprintf("INSERT INTO %s(%s) VALUES(?)", d.SeasonTable, d.SeasonKeyColumn)
	insertSegFrac := fmt.Sprintf("REPLACE INTO %s(%s, %s, %s, %s) VALUES(?, ?, ?, ?)",
		d.SegFracTable, d.SegFracSeasonColumn, d.SegFracTodColumn, d.SegFracValueColumn, d.SegFracNotesColumn)

	for _, p := range set {
		days, err := periods.Expand(p.Label)
		if err != nil {
			return err
		}

		if err := a.foldActivityTables(tx, p.Label, days); err != nil {
			return err
		}

		if _, err := tx.Exec(insertSeason, p.Label); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
		for _, hour := range hours {
			if _, err := tx.Exec(insertSegFrac, p.Label, hour, p.Weight/float64(len(hours)), segFracNote); err != nil {
				return apperrors.Wrap(apperrors.CodeIO, op, err)
			}
		}

		scaleDSD := fmt.Sprintf("UPDATE DemandSpecificDistribution SET dsd = dsd * ? WHERE %s IN (%s)",
			d.SeasonColumn, placeholders(len(days)))
		if _, err := tx.Exec(scaleDSD, append([]any{p.Weight}, asAny(days)...)...); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}

		if err := a.rekeyShapeTables(tx, p.Label, days, hours); err != nil {
			return err
		}
	}

	return a.dropOrphanSeasons(tx)
}

// foldActivityTables collapses per-day activity limits into one row per
// period, keyed by region, model-year period and technology, with the folded
// days' values summed.
func (a *relationalAdapter) foldActivityTables(tx *sql.Tx, label string, days []string) error {
	const op = "database.relationalAdapter.foldActivityTables"
	d := a.dialect

	for _, table := range d.ActivityTables {
		exists, err := tableExists(tx, table.Name)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
		if !exists {
			continue
		}

		query := fmt.Sprintf(
			"SELECT %s, %s, tech, SUM(%s) FROM %s WHERE %s IN (%s) GROUP BY %s, %s, tech",
			d.RegionColumn, d.PeriodColumn, table.ValueColumn, table.Name,
			d.SeasonColumn, placeholders(len(days)), d.RegionColumn, d.PeriodColumn)
		rows, err := tx.Query(query, asAny(days)...)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}

		type folded struct {
			region string
			period int64
			tech   string
			total  float64
		}
		var groups []folded
		for rows.Next() {
			var g folded
			if err := rows.Scan(&g.region, &g.period, &g.tech, &g.total); err != nil {
				rows.Close()
				return apperrors.Wrap(apperrors.CodeIO, op, err)
			}
			groups = append(groups, g)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
		rows.Close()

		update := fmt.Sprintf(
			"UPDATE %s SET %s = ?, %s = ? WHERE %s = ? AND %s = ? AND %s = ? AND tech = ?",
			table.Name, table.ValueColumn, d.SeasonColumn,
			d.SeasonColumn, d.RegionColumn, d.PeriodColumn)
		for _, g := range groups {
			if _, err := tx.Exec(update, g.total, label, days[0], g.region, g.period, g.tech); err != nil {
				return apperrors.Wrap(apperrors.CodeIO, op, err)
			}
		}
	}
	return nil
}

// rekeyShapeTables renames the hourly rows of the period's constituent days
// onto the period's own season and time-of-day labels.
func (a *relationalAdapter) rekeyShapeTables(tx *sql.Tx, label string, days, hours []string) error {
	const op = "database.relationalAdapter.rekeyShapeTables"
	d := a.dialect

	for _, table := range d.ShapeTables {
		exists, err := tableExists(tx, table)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
		if !exists {
			continue
		}

		rekeyHour := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ? AND %s = ?",
			table, d.TodColumn, d.SeasonColumn, d.TodColumn)
		for di, day := range days {
			for h := 0; h < 24; h++ {
				if _, err := tx.Exec(rekeyHour, hours[24*di+h], day, periods.HourLabel(h+1, 24)); err != nil {
					return apperrors.Wrap(apperrors.CodeIO, op, err)
				}
			}
		}

		rekeySeason := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s IN (%s)",
			table, d.SeasonColumn, d.SeasonColumn, placeholders(len(days)))
		if _, err := tx.Exec(rekeySeason, append([]any{label}, asAny(days)...)...); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}
	return nil
}

// dropOrphanSeasons removes every row whose season no longer exists in the
// rebuilt season reference table.
func (a *relationalAdapter) dropOrphanSeasons(tx *sql.Tx) error {
	const op = "database.relationalAdapter.dropOrphanSeasons"
	d := a.dialect

	for _, table := range d.SeasonTables {
		exists, err := tableExists(tx, table)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
		if !exists {
			continue
		}
		query := fmt.Sprintf("DELETE FROM %s WHERE %s NOT IN (SELECT %s FROM %s)",
			table, d.SeasonColumn, d.SeasonKeyColumn, d.SeasonTable)
		if _, err := tx.Exec(query); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}
	return nil
}

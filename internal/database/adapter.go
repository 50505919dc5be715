package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	apperrors "repdays/internal/errors"
	"repdays/internal/periods"
)

// segFracNote is written into every inserted segment-fraction row.
const segFracNote = "Weight from clustering"

// Adapter rewrites one database variant onto a representative period set.
// Apply always starts from a fresh copy of the untouched source, so repeated
// runs with the same period set produce identical output.
type Adapter interface {
	Name() string
	// Claims reports whether this adapter handles the given schema version.
	Claims(v Version) bool
	Apply(ctx context.Context, sourcePath, outputPath string, set periods.Set, seq periods.Sequence) error
}

func copyDatabase(sourcePath, outputPath string) error {
	const op = "database.copyDatabase"

	src, err := os.Open(sourcePath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	defer src.Close()

	dst, err := os.Create(outputPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	return dst.Close()
}

func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, "database.openDatabase", err)
	}
	return db, nil
}

// placeholders renders "?, ?, ?" for n bound values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func asAny(labels []string) []any {
	out := make([]any, len(labels))
	for i, l := range labels {
		out[i] = l
	}
	return out
}

// finish compacts the rewritten database and reports, without aborting,
// every referential-integrity violation the reduction introduced.
func finish(db *sql.DB, name string, logger *slog.Logger) error {
	const op = "database.finish"

	if _, err := db.Exec("VACUUM"); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = 1"); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}

	rows, err := db.Query("PRAGMA foreign_key_check")
	if err != nil {
		logger.Warn("foreign key check failed to run",
			slog.String("database", name),
			slog.String("error", err.Error()))
		return nil
	}
	defer rows.Close()

	violations := 0
	for rows.Next() {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return apperrors.Wrap(apperrors.CodeIntegrity, op, err)
		}
		violations++
		logger.Warn("foreign key violation after rewrite",
			slog.String("database", name),
			slog.String("table", table),
			slog.Int64("rowid", rowid.Int64),
			slog.String("references", parent))
	}
	if err := rows.Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeIntegrity, op, err)
	}
	if violations > 0 {
		logger.Warn("rewrite left integrity violations",
			slog.String("database", name),
			slog.Int("violations", violations))
	}
	return nil
}

// dsdGroup is one demand-distribution normalization group.
type dsdGroup struct {
	Period string
	Region string
	Demand string
	Total  float64
	Count  int
}

// renormalizeFlat rescales every legacy/v3 demand-distribution group to sum
// to 1. A group whose mass is zero is filled with a uniform flatline and
// flagged; the model sees a distribution but not a physically meaningful one.
func renormalizeFlat(tx *sql.Tx, d Dialect, name string, logger *slog.Logger) error {
	const op = "database.renormalizeFlat"

	query := fmt.Sprintf(
		"SELECT %s, demand_name, SUM(dsd), COUNT(*) FROM DemandSpecificDistribution GROUP BY %s, demand_name",
		d.RegionColumn, d.RegionColumn)
	rows, err := tx.Query(query)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	groups, err := scanGroups(rows, false)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}

	for _, g := range groups {
		if g.Total == 0 {
			logger.Warn("demand distribution group has zero mass, applying flatline fallback",
				slog.String("database", name),
				slog.String("region", g.Region),
				slog.String("demand", g.Demand))
			_, err = tx.Exec(fmt.Sprintf(
				"UPDATE DemandSpecificDistribution SET dsd = ? WHERE %s = ? AND demand_name = ?",
				d.RegionColumn),
				1.0/float64(g.Count), g.Region, g.Demand)
		} else {
			_, err = tx.Exec(fmt.Sprintf(
				"UPDATE DemandSpecificDistribution SET dsd = dsd / ? WHERE %s = ? AND demand_name = ?",
				d.RegionColumn),
				g.Total, g.Region, g.Demand)
		}
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}
	return nil
}

// scanGroups reads normalization groups. withPeriod selects the 3.1 layout
// where groups are additionally keyed by model-year period.
func scanGroups(rows *sql.Rows, withPeriod bool) ([]dsdGroup, error) {
	defer rows.Close()

	var groups []dsdGroup
	for rows.Next() {
		var g dsdGroup
		var err error
		if withPeriod {
			err = rows.Scan(&g.Period, &g.Region, &g.Demand, &g.Total, &g.Count)
		} else {
			err = rows.Scan(&g.Region, &g.Demand, &g.Total, &g.Count)
		}
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

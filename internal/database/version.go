// Package database rewrites the time dimension of energy-model SQLite
// databases onto a representative period set. Three schema dialects are
// supported; each database picks its adapter through its own version
// metadata.
package database

import (
	"database/sql"
	"fmt"
	"strconv"

	apperrors "repdays/internal/errors"
)

// Version identifies a database schema dialect.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// DetectVersion reads the schema version from the database's MetaData table.
// Databases without a MetaData table predate versioning and report 0.0.
func DetectVersion(db *sql.DB) (Version, error) {
	const op = "database.DetectVersion"

	exists, err := tableExists(db, "MetaData")
	if err != nil {
		return Version{}, apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	if !exists {
		return Version{}, nil
	}

	major, err := metaValue(db, "DB_MAJOR")
	if err != nil {
		return Version{}, apperrors.Wrapf(apperrors.CodeSchemaMismatch, op, err, "reading DB_MAJOR")
	}
	minor, err := metaValue(db, "DB_MINOR")
	if err != nil {
		// Early versioned schemas carry only a major number.
		minor = 0
	}
	return Version{Major: major, Minor: minor}, nil
}

func metaValue(db *sql.DB, element string) (int, error) {
	var raw string
	err := db.QueryRow("SELECT value FROM MetaData WHERE element = ?", element).Scan(&raw)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("metadata element %s holds %q, not an integer", element, raw)
	}
	return n, nil
}

// querier covers both *sql.DB and *sql.Tx.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

func tableExists(db querier, name string) (bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

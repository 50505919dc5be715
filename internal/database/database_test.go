package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repdays/internal/config"
	apperrors "repdays/internal/errors"
	"repdays/internal/periods"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openRaw(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func execAll(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func countRows(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func sumColumn(t *testing.T, db *sql.DB, query string, args ...any) float64 {
	t.Helper()
	var total float64
	require.NoError(t, db.QueryRow(query, args...).Scan(&total))
	return total
}

// createLegacyDB builds an unversioned fixture with four days of data.
func createLegacyDB(t *testing.T, path string) {
	t.Helper()
	db := openRaw(t, path)
	execAll(t, db,
		"CREATE TABLE time_season (t_season TEXT PRIMARY KEY)",
		"CREATE TABLE time_of_day (t_day TEXT PRIMARY KEY)",
		"CREATE TABLE SegFrac (season_name TEXT, time_of_day_name TEXT, segfrac REAL, segfrac_notes TEXT, PRIMARY KEY(season_name, time_of_day_name))",
		"CREATE TABLE DemandSpecificDistribution (regions TEXT, season_name TEXT, time_of_day_name TEXT, demand_name TEXT, dsd REAL)",
		"CREATE TABLE CapacityFactorTech (regions TEXT, season_name TEXT, time_of_day_name TEXT, tech TEXT, cf_tech REAL)",
		"CREATE TABLE MinSeasonalActivity (regions TEXT, periods INTEGER, season_name TEXT, tech TEXT, minact REAL)",
		"CREATE TABLE MaxSeasonalActivity (regions TEXT, periods INTEGER, season_name TEXT, tech TEXT, maxact REAL)",
	)
	for d := 1; d <= 4; d++ {
		day := periods.DayLabel(d)
		execAll(t, db, fmt.Sprintf("INSERT INTO time_season(t_season) VALUES('%s')", day))
		for h := 1; h <= 3; h++ {
			hour := periods.HourLabel(h, 24)
			execAll(t, db,
				fmt.Sprintf("INSERT INTO DemandSpecificDistribution VALUES('R1', '%s', '%s', 'DMD', 1.0)", day, hour),
				fmt.Sprintf("INSERT INTO DemandSpecificDistribution VALUES('R2', '%s', '%s', 'DMD0', 0.0)", day, hour),
				fmt.Sprintf("INSERT INTO CapacityFactorTech VALUES('R1', '%s', '%s', 'wind', 0.3)", day, hour),
			)
		}
		execAll(t, db,
			fmt.Sprintf("INSERT INTO MinSeasonalActivity VALUES('R1', 2030, '%s', 'hydro', %d)", day, d),
			fmt.Sprintf("INSERT INTO MinSeasonalActivity VALUES('R1', 2030, '%s', 'nuclear', %d)", day, 10*d),
		)
	}
	for h := 1; h <= 24; h++ {
		execAll(t, db, fmt.Sprintf("INSERT INTO time_of_day(t_day) VALUES('%s')", periods.HourLabel(h, 24)))
	}
}

// createV31DB builds a version 3.1 fixture spanning two model-year periods.
func createV31DB(t *testing.T, path string) {
	t.Helper()
	db := openRaw(t, path)
	execAll(t, db,
		"CREATE TABLE MetaData (element TEXT PRIMARY KEY, value INTEGER, notes TEXT)",
		"INSERT INTO MetaData VALUES('DB_MAJOR', 3, '')",
		"INSERT INTO MetaData VALUES('DB_MINOR', 1, '')",
		"CREATE TABLE TimeSeason (period INTEGER, sequence INTEGER, season TEXT, PRIMARY KEY(period, sequence))",
		"CREATE TABLE TimeSegmentFraction (period INTEGER, season TEXT, tod TEXT, segfrac REAL, notes TEXT, PRIMARY KEY(period, season, tod))",
		"CREATE TABLE TimeSeasonSequential (period INTEGER, sequence INTEGER, season TEXT, PRIMARY KEY(period, sequence))",
		"CREATE TABLE DemandSpecificDistribution (region TEXT, period INTEGER, season TEXT, tod TEXT, demand_name TEXT, dsd REAL)",
		"CREATE TABLE Demand (region TEXT, period INTEGER, commodity TEXT, demand REAL)",
		"CREATE TABLE CapacityFactorTech (region TEXT, season TEXT, tod TEXT, tech TEXT, factor REAL)",
		"INSERT INTO Demand VALUES('R1', 2030, 'DMD', 100.0)",
	)
	for d := 1; d <= 3; d++ {
		day := periods.DayLabel(d)
		for h := 1; h <= 4; h++ {
			hour := periods.HourLabel(h, 24)
			execAll(t, db,
				fmt.Sprintf("INSERT INTO DemandSpecificDistribution VALUES('R1', 2030, '%s', '%s', 'DMD', 0.5)", day, hour),
				fmt.Sprintf("INSERT INTO CapacityFactorTech VALUES('R1', '%s', '%s', 'wind', 0.3)", day, hour),
			)
		}
	}
}

func TestDetectVersion(t *testing.T) {
	dir := t.TempDir()

	legacy := filepath.Join(dir, "legacy.sqlite")
	createLegacyDB(t, legacy)
	v, err := DetectVersion(openRaw(t, legacy))
	require.NoError(t, err)
	assert.Equal(t, Version{0, 0}, v)

	v31 := filepath.Join(dir, "v31.sqlite")
	createV31DB(t, v31)
	v, err = DetectVersion(openRaw(t, v31))
	require.NoError(t, err)
	assert.Equal(t, Version{3, 1}, v)

	majorOnly := filepath.Join(dir, "major.sqlite")
	db := openRaw(t, majorOnly)
	execAll(t, db,
		"CREATE TABLE MetaData (element TEXT PRIMARY KEY, value INTEGER, notes TEXT)",
		"INSERT INTO MetaData VALUES('DB_MAJOR', 3, '')",
	)
	v, err = DetectVersion(db)
	require.NoError(t, err)
	assert.Equal(t, Version{3, 0}, v)

	garbled := filepath.Join(dir, "garbled.sqlite")
	db = openRaw(t, garbled)
	execAll(t, db,
		"CREATE TABLE MetaData (element TEXT PRIMARY KEY, value TEXT, notes TEXT)",
		"INSERT INTO MetaData VALUES('DB_MAJOR', 'next', '')",
	)
	_, err = DetectVersion(db)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeSchemaMismatch, apperrors.CodeOf(err))
}

func TestLegacySingleDayRewrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "model.sqlite")
	out := filepath.Join(dir, "out.sqlite")
	createLegacyDB(t, src)

	cfg := config.Default()
	set := periods.Set{
		{Label: "D001", Weight: 0.75, Kind: periods.KindTypical},
		{Label: "D003", Weight: 0.25, Kind: periods.KindTypical},
	}

	adapter := NewLegacyAdapter(cfg, testLogger())
	require.NoError(t, adapter.Apply(context.Background(), src, out, set, nil))

	db := openRaw(t, out)
	assert.Equal(t, 2, countRows(t, db, "SELECT COUNT(*) FROM time_season"))
	assert.Equal(t, 48, countRows(t, db, "SELECT COUNT(*) FROM SegFrac"))
	assert.InDelta(t, 0.75/24,
		sumColumn(t, db, "SELECT segfrac FROM SegFrac WHERE season_name = 'D001' AND time_of_day_name = 'H01'"), 1e-12)

	// Dropped day gone everywhere.
	assert.Zero(t, countRows(t, db, "SELECT COUNT(*) FROM DemandSpecificDistribution WHERE season_name = 'D002'"))
	assert.Zero(t, countRows(t, db, "SELECT COUNT(*) FROM CapacityFactorTech WHERE season_name = 'D004'"))

	// Each surviving group sums to 1.
	assert.InDelta(t, 1.0,
		sumColumn(t, db, "SELECT SUM(dsd) FROM DemandSpecificDistribution WHERE regions = 'R1' AND demand_name = 'DMD'"), 1e-9)

	// Per-row check: D001 carries 0.75 over 3 equal hours of the 6-row group.
	assert.InDelta(t, 0.25,
		sumColumn(t, db, "SELECT dsd FROM DemandSpecificDistribution WHERE regions = 'R1' AND season_name = 'D001' AND time_of_day_name = 'H01'"), 1e-9)

	// Source untouched.
	srcDB := openRaw(t, src)
	assert.Equal(t, 4, countRows(t, srcDB, "SELECT COUNT(*) FROM time_season"))
}

func TestLegacyZeroMassFlatline(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "model.sqlite")
	out := filepath.Join(dir, "out.sqlite")
	createLegacyDB(t, src)

	cfg := config.Default()
	set := periods.Set{
		{Label: "D001", Weight: 0.5},
		{Label: "D003", Weight: 0.5},
	}
	require.NoError(t, NewLegacyAdapter(cfg, testLogger()).Apply(context.Background(), src, out, set, nil))

	db := openRaw(t, out)
	rows, err := db.Query("SELECT dsd FROM DemandSpecificDistribution WHERE regions = 'R2' AND demand_name = 'DMD0'")
	require.NoError(t, err)
	defer rows.Close()
	n := 0
	for rows.Next() {
		var v float64
		require.NoError(t, rows.Scan(&v))
		assert.Equal(t, 1.0/6, v)
		n++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, 6, n)
}

func TestLegacyMultidayFolding(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "model.sqlite")
	out := filepath.Join(dir, "out.sqlite")
	createLegacyDB(t, src)

	cfg := config.Default()
	cfg.DaysPerPeriod = 2
	set := periods.Set{{Label: "D001-D002", Weight: 1.0}}

	require.NoError(t, NewLegacyAdapter(cfg, testLogger()).Apply(context.Background(), src, out, set, nil))

	db := openRaw(t, out)
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM time_season"))
	assert.Equal(t, 48, countRows(t, db, "SELECT COUNT(*) FROM time_of_day"))
	assert.Equal(t, 48, countRows(t, db, "SELECT COUNT(*) FROM SegFrac"))

	// Activity limits fold by summation per technology; the groups sharing
	// a first day must not overwrite each other.
	assert.InDelta(t, 3.0,
		sumColumn(t, db, "SELECT minact FROM MinSeasonalActivity WHERE tech = 'hydro' AND season_name = 'D001-D002'"), 1e-12)
	assert.InDelta(t, 30.0,
		sumColumn(t, db, "SELECT minact FROM MinSeasonalActivity WHERE tech = 'nuclear' AND season_name = 'D001-D002'"), 1e-12)
	assert.Equal(t, 2, countRows(t, db, "SELECT COUNT(*) FROM MinSeasonalActivity"))

	// Second day's hours shift onto the extended time-of-day axis.
	assert.Equal(t, 1, countRows(t, db,
		"SELECT COUNT(*) FROM CapacityFactorTech WHERE season_name = 'D001-D002' AND time_of_day_name = 'H25'"))
	assert.Zero(t, countRows(t, db, "SELECT COUNT(*) FROM CapacityFactorTech WHERE season_name = 'D002'"))

	assert.InDelta(t, 1.0,
		sumColumn(t, db, "SELECT SUM(dsd) FROM DemandSpecificDistribution WHERE regions = 'R1' AND demand_name = 'DMD'"), 1e-9)
}

func TestLegacyIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "model.sqlite")
	createLegacyDB(t, src)

	cfg := config.Default()
	set := periods.Set{
		{Label: "D001", Weight: 0.75},
		{Label: "D003", Weight: 0.25},
	}
	adapter := NewLegacyAdapter(cfg, testLogger())

	first := filepath.Join(dir, "first.sqlite")
	second := filepath.Join(dir, "second.sqlite")
	require.NoError(t, adapter.Apply(context.Background(), src, first, set, nil))
	require.NoError(t, adapter.Apply(context.Background(), src, second, set, nil))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestV3SingleDayRewrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "model.sqlite")
	out := filepath.Join(dir, "out.sqlite")

	db := openRaw(t, src)
	execAll(t, db,
		"CREATE TABLE MetaData (element TEXT PRIMARY KEY, value INTEGER, notes TEXT)",
		"INSERT INTO MetaData VALUES('DB_MAJOR', 3, '')",
		"INSERT INTO MetaData VALUES('DB_MINOR', 0, '')",
		"CREATE TABLE TimeSeason (season TEXT PRIMARY KEY)",
		"CREATE TABLE TimeOfDay (tod TEXT PRIMARY KEY)",
		"CREATE TABLE TimeSegmentFraction (season TEXT, tod TEXT, segfrac REAL, notes TEXT, PRIMARY KEY(season, tod))",
		"CREATE TABLE DemandSpecificDistribution (region TEXT, season TEXT, tod TEXT, demand_name TEXT, dsd REAL)",
		"INSERT INTO TimeSeason VALUES('D001')",
		"INSERT INTO TimeSeason VALUES('D002')",
		"INSERT INTO DemandSpecificDistribution VALUES('R1', 'D001', 'H01', 'DMD', 0.4)",
		"INSERT INTO DemandSpecificDistribution VALUES('R1', 'D001', 'H02', 'DMD', 0.6)",
		"INSERT INTO DemandSpecificDistribution VALUES('R1', 'D002', 'H01', 'DMD', 1.0)",
	)

	cfg := config.Default()
	set := periods.Set{{Label: "D001", Weight: 1.0}}
	require.NoError(t, NewV3Adapter(cfg, testLogger()).Apply(context.Background(), src, out, set, nil))

	outDB := openRaw(t, out)
	assert.Equal(t, 1, countRows(t, outDB, "SELECT COUNT(*) FROM TimeSeason"))
	assert.Equal(t, 24, countRows(t, outDB, "SELECT COUNT(*) FROM TimeSegmentFraction"))
	assert.Zero(t, countRows(t, outDB, "SELECT COUNT(*) FROM DemandSpecificDistribution WHERE season = 'D002'"))
	assert.InDelta(t, 0.4,
		sumColumn(t, outDB, "SELECT dsd FROM DemandSpecificDistribution WHERE season = 'D001' AND tod = 'H01'"), 1e-9)
}

func TestV31Rewrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "model.sqlite")
	out := filepath.Join(dir, "out.sqlite")
	createV31DB(t, src)

	cfg := config.Default()
	cfg.ModelYears = []int{2030, 2040}
	cfg.DemandPreservation = config.DemandPreserveHourly

	set := periods.Set{
		{Label: "D001", Weight: 0.5},
		{Label: "D002", Weight: 0.5},
	}
	seq := periods.Collapse([]string{"D001", "D001", "D002"})

	require.NoError(t, NewV31Adapter(cfg, testLogger()).Apply(context.Background(), src, out, set, seq))

	db := openRaw(t, out)
	assert.Equal(t, 4, countRows(t, db, "SELECT COUNT(*) FROM TimeSeason"))
	assert.Equal(t, 2*2*24, countRows(t, db, "SELECT COUNT(*) FROM TimeSegmentFraction"))
	assert.Equal(t, 2*3, countRows(t, db, "SELECT COUNT(*) FROM TimeSeasonSequential"))
	assert.Equal(t, "D002",
		queryString(t, db, "SELECT season FROM TimeSeasonSequential WHERE period = 2040 AND sequence = 2"))

	assert.Zero(t, countRows(t, db, "SELECT COUNT(*) FROM DemandSpecificDistribution WHERE season = 'D003'"))
	assert.InDelta(t, 1.0,
		sumColumn(t, db, "SELECT SUM(dsd) FROM DemandSpecificDistribution WHERE region = 'R1' AND period = 2030 AND demand_name = 'DMD'"), 1e-9)

	// Hourly preservation scales the annual total by the group's mass:
	// 8 surviving rows of 0.5, each scaled by 0.5 * 365.
	wantMass := 8 * 0.5 * 0.5 * 365
	assert.InDelta(t, 100.0*wantMass,
		sumColumn(t, db, "SELECT demand FROM Demand WHERE region = 'R1' AND commodity = 'DMD'"), 1e-6)
}

func TestV31TrimmingBoundaryTies(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "model.sqlite")
	out := filepath.Join(dir, "out.sqlite")

	db := openRaw(t, src)
	execAll(t, db,
		"CREATE TABLE MetaData (element TEXT PRIMARY KEY, value INTEGER, notes TEXT)",
		"INSERT INTO MetaData VALUES('DB_MAJOR', 3, '')",
		"INSERT INTO MetaData VALUES('DB_MINOR', 1, '')",
		"CREATE TABLE TimeSeason (period INTEGER, sequence INTEGER, season TEXT, PRIMARY KEY(period, sequence))",
		"CREATE TABLE TimeSegmentFraction (period INTEGER, season TEXT, tod TEXT, segfrac REAL, notes TEXT, PRIMARY KEY(period, season, tod))",
		"CREATE TABLE DemandSpecificDistribution (region TEXT, period INTEGER, season TEXT, tod TEXT, demand_name TEXT, dsd REAL)",
	)
	// Weight 1 and a division by 365 cancel the annual scaling, so the
	// group's post-scaling values equal these inputs. The two 0.01 entries
	// and the first 0.02 fall below the 5% cut, but the 0.02 pair straddles
	// the boundary and a tie there is never partially trimmed: both stay.
	values := []float64{0.01, 0.01, 0.02, 0.02}
	rest := (1.0 - 0.06) / 20
	for i := 0; i < 20; i++ {
		values = append(values, rest)
	}
	for i, v := range values {
		execAll(t, db, fmt.Sprintf(
			"INSERT INTO DemandSpecificDistribution VALUES('R1', 2030, 'D001', '%s', 'DMD', %g)",
			periods.HourLabel(i+1, 24), v/365))
	}

	cfg := config.Default()
	cfg.ModelYears = []int{2030}
	cfg.DSDThreshold = 0.05

	set := periods.Set{{Label: "D001", Weight: 1.0}}
	require.NoError(t, NewV31Adapter(cfg, testLogger()).Apply(context.Background(), src, out, set, nil))

	outDB := openRaw(t, out)
	assert.Equal(t, 2, countRows(t, outDB,
		"SELECT COUNT(*) FROM DemandSpecificDistribution WHERE dsd = 0"))
	assert.True(t, sumColumn(t, outDB,
		"SELECT dsd FROM DemandSpecificDistribution WHERE tod = 'H03'") > 0)
	assert.True(t, sumColumn(t, outDB,
		"SELECT dsd FROM DemandSpecificDistribution WHERE tod = 'H04'") > 0)
	assert.InDelta(t, 1.0,
		sumColumn(t, outDB, "SELECT SUM(dsd) FROM DemandSpecificDistribution"), 1e-9)
}

func TestV31MultidayWithoutDisaggregateSkipped(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "model.sqlite")
	out := filepath.Join(dir, "out.sqlite")
	createV31DB(t, src)

	cfg := config.Default()
	cfg.DaysPerPeriod = 2

	set := periods.Set{{Label: "D001-D002", Weight: 1.0}}
	require.NoError(t, NewV31Adapter(cfg, testLogger()).Apply(context.Background(), src, out, set, nil))

	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestProcessorRoutesByVersion(t *testing.T) {
	dir := t.TempDir()
	inputDir := filepath.Join(dir, "in")
	outputDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(inputDir, 0o755))

	createLegacyDB(t, filepath.Join(inputDir, "legacy.sqlite"))
	createV31DB(t, filepath.Join(inputDir, "modern.sqlite"))

	future := openRaw(t, filepath.Join(inputDir, "future.sqlite"))
	execAll(t, future,
		"CREATE TABLE MetaData (element TEXT PRIMARY KEY, value INTEGER, notes TEXT)",
		"INSERT INTO MetaData VALUES('DB_MAJOR', 99, '')",
	)

	cfg := config.Default()
	cfg.ModelYears = []int{2030}
	cfg.Paths.InputSQLiteDir = inputDir
	cfg.Paths.OutputSQLiteDir = outputDir

	set := periods.Set{
		{Label: "D001", Weight: 0.5},
		{Label: "D003", Weight: 0.5},
	}
	proc := NewProcessor(cfg, testLogger())
	proc.Parallel = 2

	summary, err := proc.ProcessAll(context.Background(), set, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)

	_, err = os.Stat(filepath.Join(outputDir, "legacy.sqlite"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outputDir, "modern.sqlite"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(outputDir, "future.sqlite"))
	assert.True(t, os.IsNotExist(err))
}

func queryString(t *testing.T, db *sql.DB, query string, args ...any) string {
	t.Helper()
	var s string
	require.NoError(t, db.QueryRow(query, args...).Scan(&s))
	return s
}

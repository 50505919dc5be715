package database

// ActivityTable names a seasonal activity-limit table and its value column.
// Values fold by summation when days collapse into a multi-day period.
type ActivityTable struct {
	Name        string
	ValueColumn string
}

// Dialect is the table and column registry of one schema variant. Every
// rewrite statement takes its identifiers from here and binds all values as
// parameters; query text is never assembled from database content.
type Dialect struct {
	Name string

	SeasonTable        string
	SeasonKeyColumn    string
	TimeOfDayTable     string
	TimeOfDayKeyColumn string

	SegFracTable        string
	SegFracSeasonColumn string
	SegFracTodColumn    string
	SegFracValueColumn  string
	SegFracNotesColumn  string

	// Column names shared by the data tables below.
	SeasonColumn string
	TodColumn    string
	RegionColumn string
	PeriodColumn string

	// SeasonTables lists every table keyed by season. ShapeTables is the
	// subset carrying hourly values that are re-keyed under multi-day
	// folding; ActivityTables are aggregated instead.
	SeasonTables   []string
	ShapeTables    []string
	ActivityTables []ActivityTable
}

var legacyDialect = Dialect{
	Name: "legacy",

	SeasonTable:        "time_season",
	SeasonKeyColumn:    "t_season",
	TimeOfDayTable:     "time_of_day",
	TimeOfDayKeyColumn: "t_day",

	SegFracTable:        "SegFrac",
	SegFracSeasonColumn: "season_name",
	SegFracTodColumn:    "time_of_day_name",
	SegFracValueColumn:  "segfrac",
	SegFracNotesColumn:  "segfrac_notes",

	SeasonColumn: "season_name",
	TodColumn:    "time_of_day_name",
	RegionColumn: "regions",
	PeriodColumn: "periods",

	SeasonTables: []string{
		"DemandSpecificDistribution",
		"CapacityFactorTech",
		"CapacityFactorProcess",
		"MinSeasonalActivity",
		"MaxSeasonalActivity",
	},
	ShapeTables: []string{
		"DemandSpecificDistribution",
		"CapacityFactorTech",
		"CapacityFactorProcess",
	},
	ActivityTables: []ActivityTable{
		{Name: "MinSeasonalActivity", ValueColumn: "minact"},
		{Name: "MaxSeasonalActivity", ValueColumn: "maxact"},
	},
}

var v3Dialect = Dialect{
	Name: "v3",

	SeasonTable:        "TimeSeason",
	SeasonKeyColumn:    "season",
	TimeOfDayTable:     "TimeOfDay",
	TimeOfDayKeyColumn: "tod",

	SegFracTable:        "TimeSegmentFraction",
	SegFracSeasonColumn: "season",
	SegFracTodColumn:    "tod",
	SegFracValueColumn:  "segfrac",
	SegFracNotesColumn:  "notes",

	SeasonColumn: "season",
	TodColumn:    "tod",
	RegionColumn: "region",
	PeriodColumn: "period",

	SeasonTables: []string{
		"DemandSpecificDistribution",
		"CapacityFactorTech",
		"CapacityFactorProcess",
		"MinSeasonalActivity",
		"MaxSeasonalActivity",
	},
	ShapeTables: []string{
		"DemandSpecificDistribution",
		"CapacityFactorTech",
		"CapacityFactorProcess",
	},
	ActivityTables: []ActivityTable{
		{Name: "MinSeasonalActivity", ValueColumn: "min_act"},
		{Name: "MaxSeasonalActivity", ValueColumn: "max_act"},
	},
}

// v31SeasonTables lists the season-keyed tables of the 3.1 schema. All are
// optional; instances vary in which ones they carry.
var v31SeasonTables = []string{
	"DemandSpecificDistribution",
	"CapacityFactorTech",
	"CapacityFactorProcess",
	"EfficiencyVariable",
	"LimitSeasonalCapacityFactor",
	"LimitStorageLevelFraction",
	"ReserveCapacityDerate",
}

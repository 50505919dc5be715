// Package config loads and validates the pipeline configuration.
//
// Configuration is read once at startup from a YAML file, overridden by
// REPDAYS_* environment variables, validated, and then passed by reference
// into every component. No package reads ambient global state.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "repdays/internal/errors"
)

// Extreme-period criteria understood by the clustering capability.
const (
	CriterionMaxPeak = "max_peak"
	CriterionMinPeak = "min_peak"
	CriterionMaxMean = "max_mean"
	CriterionMinMean = "min_mean"
)

// Demand preservation modes for the most detailed schema variant.
const (
	DemandPreserveShape  = "shape"
	DemandPreserveHourly = "hourly"
)

// Config is the complete, immutable pipeline configuration.
type Config struct {
	DaysPerPeriod        int                 `yaml:"days_per_period" envconfig:"DAYS_PER_PERIOD" validate:"min=1"`
	DayToIndex           int                 `yaml:"day_to_index" envconfig:"DAY_TO_INDEX"`
	FinalPeriods         int                 `yaml:"final_periods" envconfig:"FINAL_PERIODS" validate:"min=1"`
	TestPeriods          []int               `yaml:"test_periods" envconfig:"TEST_PERIODS"`
	ClusteringMethod     string              `yaml:"clustering_method" envconfig:"CLUSTERING_METHOD"`
	ForceDays            []int               `yaml:"force_days" ignored:"true"`
	ForcePeriods         []int               `yaml:"force_periods" ignored:"true"`
	ExtremePeriods       map[string][]string `yaml:"extreme_periods" ignored:"true"`
	CustomFeatures       []FeatureRule       `yaml:"custom_features" ignored:"true"`
	PCAGroups            []PCAGroup          `yaml:"pca_groups" ignored:"true"`
	DisaggregateMultiday bool                `yaml:"disaggregate_multiday" envconfig:"DISAGGREGATE_MULTIDAY"`
	DemandPreservation   string              `yaml:"demand_preservation" envconfig:"DEMAND_PRESERVATION" validate:"omitempty,oneof=shape hourly"`
	DSDThreshold         float64             `yaml:"dsd_threshold" envconfig:"DSD_THRESHOLD" validate:"gte=0,lt=1"`
	ModelYears           []int               `yaml:"model_years" envconfig:"MODEL_YEARS"`
	Timeseries           yaml.MapSlice       `yaml:"timeseries" ignored:"true"`
	ShowPlots            bool                `yaml:"show_plots" envconfig:"SHOW_PLOTS"`

	Paths   PathsConfig   `yaml:"paths"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// FeatureRule declares a custom feature-period rule.
type FeatureRule struct {
	Method       string `yaml:"method" validate:"required"`
	Timeseries   string `yaml:"timeseries"`
	DaysInPeriod int    `yaml:"days_in_period"`
}

// PCAGroup declares a group of series to reduce to principal components that
// are appended to the clustering matrix as synthetic series.
type PCAGroup struct {
	Name        string   `yaml:"name"`
	Columns     []string `yaml:"columns" validate:"min=1"`
	NComponents int      `yaml:"n_components" validate:"min=1"`
	Scale       *bool    `yaml:"scale"`
}

// PathsConfig contains the file-system layout of the pipeline.
type PathsConfig struct {
	TimeseriesDir   string `yaml:"timeseries_dir" envconfig:"TIMESERIES_DIR"`
	InputSQLiteDir  string `yaml:"input_sqlite_dir" envconfig:"INPUT_SQLITE_DIR"`
	OutputSQLiteDir string `yaml:"output_sqlite_dir" envconfig:"OUTPUT_SQLITE_DIR"`
	OutputDataDir   string `yaml:"output_data_dir" envconfig:"OUTPUT_DATA_DIR"`
	PeriodsFile     string `yaml:"periods_file" envconfig:"PERIODS_FILE"`
	SequenceFile    string `yaml:"sequence_file" envconfig:"SEQUENCE_FILE"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format   string `yaml:"format" envconfig:"LOG_FORMAT"`
	Output   string `yaml:"output" envconfig:"LOG_OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"LOG_FILE_PATH"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" envconfig:"TRACING_ENABLED"`
}

// Load reads the configuration file, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, op, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, apperrors.Wrapf(apperrors.CodeInvalidConfig, op, err, "parsing %s", path)
	}

	// Environment variables take precedence over the file.
	if err := envconfig.Process("REPDAYS", cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidConfig, op, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with the documented defaults applied.
func Default() *Config {
	return &Config{
		DaysPerPeriod:      1,
		FinalPeriods:       12,
		ClusteringMethod:   "hierarchical",
		DemandPreservation: DemandPreserveShape,
		Paths: PathsConfig{
			TimeseriesDir:   "timeseries",
			InputSQLiteDir:  "input_sqlite",
			OutputSQLiteDir: "output_sqlite",
			OutputDataDir:   "clustering_output_data",
			PeriodsFile:     "periods.csv",
			SequenceFile:    "sequence.csv",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/repdays.log",
		},
	}
}

// Validate checks the configuration for structural and semantic problems.
func (c *Config) Validate() error {
	const op = "config.Validate"

	if err := validator.New().Struct(c); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidConfig, op, err)
	}

	for criterion := range c.ExtremePeriods {
		switch criterion {
		case CriterionMaxPeak, CriterionMinPeak, CriterionMaxMean, CriterionMinMean:
		default:
			return apperrors.Newf(apperrors.CodeInvalidConfig, op,
				"unknown extreme period criterion %q", criterion)
		}
	}

	for _, rule := range c.CustomFeatures {
		if rule.Method != "max_mean_period" {
			return apperrors.Newf(apperrors.CodeInvalidConfig, op,
				"unknown custom feature method %q", rule.Method)
		}
		if rule.Timeseries == "" || rule.DaysInPeriod < 1 {
			return apperrors.Newf(apperrors.CodeInvalidConfig, op,
				"custom feature %q needs a timeseries and days_in_period >= 1", rule.Method)
		}
	}

	for _, n := range c.TestPeriods {
		if n < 1 {
			return apperrors.Newf(apperrors.CodeInvalidConfig, op, "test period count %d < 1", n)
		}
	}

	return nil
}

// PeriodCounts returns the sorted, de-duplicated union of the test period
// counts and the final period count.
func (c *Config) PeriodCounts() []int {
	seen := map[int]bool{c.FinalPeriods: true}
	counts := []int{c.FinalPeriods}
	for _, n := range c.TestPeriods {
		if !seen[n] {
			seen[n] = true
			counts = append(counts, n)
		}
	}
	sort.Ints(counts)
	return counts
}

// ExtremeRequestCount returns the total number of extreme periods requested
// across all criteria.
func (c *Config) ExtremeRequestCount() int {
	total := 0
	for _, series := range c.ExtremePeriods {
		total += len(series)
	}
	return total
}

// HoursPerPeriod returns the number of hours covered by one clustering period.
func (c *Config) HoursPerPeriod() int {
	return 24 * c.DaysPerPeriod
}

// OutputHours returns the number of time-of-day slots the rewritten databases
// carry: hourly when multi-day periods are disaggregated, otherwise the full
// period length.
func (c *Config) OutputHours() int {
	if c.DisaggregateMultiday {
		return 24
	}
	return 24 * c.DaysPerPeriod
}

// String renders a short, loggable summary of the core options.
func (c *Config) String() string {
	return fmt.Sprintf("days_per_period=%d final_periods=%d method=%s disaggregate=%t",
		c.DaysPerPeriod, c.FinalPeriods, c.ClusteringMethod, c.DisaggregateMultiday)
}

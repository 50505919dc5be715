package timeseries

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	apperrors "repdays/internal/errors"
)

// Collector resolves a grouping tree into an aligned matrix by loading every
// leaf's CSV file from the time-series root directory.
type Collector struct {
	Root   string
	Logger *slog.Logger
}

// Collect walks the grouping tree, loads each leaf and concatenates all
// resolved series column-wise in walk order. Every file must cover the same
// number of hours; a referenced file that does not exist is a hard error.
func (c *Collector) Collect(tree Node) (*Matrix, error) {
	const op = "timeseries.Collector.Collect"

	var names []string
	var cols [][]float64
	rows := -1

	err := tree.Walk(func(path []string, leaf string) error {
		parts := append(append([]string{c.Root}, path...), leaf+".csv")
		file := filepath.Join(parts...)

		fileNames, fileCols, err := LoadSeriesFile(file)
		if err != nil {
			if os.IsNotExist(err) {
				return apperrors.Wrapf(apperrors.CodeMissingSeries, op, err,
					"series %q resolves to %s", leaf, file)
			}
			return err
		}

		for i := range fileCols {
			if rows == -1 {
				rows = len(fileCols[i])
			} else if len(fileCols[i]) != rows {
				return apperrors.Newf(apperrors.CodeInvalidConfig, op,
					"series %q has %d hours, previous series have %d",
					fileNames[i], len(fileCols[i]), rows)
			}
		}

		names = append(names, fileNames...)
		cols = append(cols, fileCols...)

		if c.Logger != nil {
			c.Logger.Debug("collected series",
				slog.String("file", file),
				slog.Int("columns", len(fileCols)),
				slog.Int("hours", rows))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return NewMatrix(names, cols)
}

// LoadSeriesFile reads a series CSV. The first column is the source index and
// is discarded; every remaining column becomes a named series. The returned
// index is reset to a contiguous 0-based hour sequence by construction.
func LoadSeriesFile(path string) ([]string, [][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("%s contains no data rows", path)
	}

	header := records[0]
	if len(header) < 2 {
		return nil, nil, fmt.Errorf("%s has no series columns", path)
	}

	names := make([]string, len(header)-1)
	for i, name := range header[1:] {
		if name == "" {
			name = fmt.Sprintf("%s_col%d", baseName(path), i)
		}
		names[i] = name
	}

	cols := make([][]float64, len(names))
	for i := range cols {
		cols[i] = make([]float64, 0, len(records)-1)
	}

	for rowNum, record := range records[1:] {
		if len(record) != len(header) {
			return nil, nil, fmt.Errorf("%s row %d has %d fields, expected %d",
				path, rowNum+2, len(record), len(header))
		}
		for i := range names {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s row %d column %q: %w", path, rowNum+2, names[i], err)
			}
			cols[i] = append(cols[i], v)
		}
	}

	return names, cols, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// Package export writes the clustering run's inspection artifacts: per-count
// CSV tables and a comparison workbook.
package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"repdays/internal/clustering"
	apperrors "repdays/internal/errors"
	"repdays/internal/timeseries"
)

// Subdirectories of the output data directory, one per artifact family.
const (
	dirRepresentative = "representative_periods"
	dirReduced        = "reduced_timeseries"
	dirAccuracy       = "accuracy_indicators"
	dirRecreated      = "recreated_timeseries"
)

// CSVWriter writes tabular artifacts under the run's output data directory.
type CSVWriter struct {
	Root   string
	Logger *slog.Logger
}

// WriteCSV writes one file with headers and records, creating directories as
// needed.
func (w *CSVWriter) WriteCSV(relPath string, headers []string, records [][]string) error {
	const op = "export.CSVWriter.WriteCSV"

	fullPath := filepath.Join(w.Root, relPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(headers); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return apperrors.Wrapf(apperrors.CodeIO, op, err, "record %d", i)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}

	if w.Logger != nil {
		w.Logger.Debug("wrote artifact",
			slog.String("path", fullPath),
			slog.Int("records", len(records)))
	}
	return nil
}

// WriteSelection writes every per-count artifact of one selection: the
// period weights, the reduced period matrix, the recreated full-length
// series and the accuracy indicators.
func (w *CSVWriter) WriteSelection(sel *clustering.Selection, m *timeseries.Matrix, method string, hoursPerPeriod int) error {
	stem := fmt.Sprintf("%s_%dp.csv", method, sel.Requested)

	records := make([][]string, 0, len(sel.Set))
	for _, p := range sel.Set {
		records = append(records, []string{p.Label, formatFloat(p.Weight), string(p.Kind)})
	}
	if err := w.WriteCSV(filepath.Join(dirRepresentative, stem),
		[]string{"period", "weight", "kind"}, records); err != nil {
		return err
	}

	if err := w.writeReduced(sel, m, stem, hoursPerPeriod); err != nil {
		return err
	}
	if err := w.writeRecreated(sel, stem); err != nil {
		return err
	}
	return w.writeAccuracy(sel, stem)
}

func (w *CSVWriter) writeReduced(sel *clustering.Selection, m *timeseries.Matrix, stem string, hoursPerPeriod int) error {
	headers := append([]string{"period", "hour"}, m.Names()...)
	var records [][]string
	for _, p := range sel.Set {
		start := p.Index * hoursPerPeriod
		for h := 0; h < hoursPerPeriod; h++ {
			record := make([]string, 0, len(headers))
			record = append(record, p.Label, strconv.Itoa(h+1))
			for c := 0; c < m.Cols(); c++ {
				record = append(record, formatFloat(m.At(start+h, c)))
			}
			records = append(records, record)
		}
	}
	return w.WriteCSV(filepath.Join(dirReduced, stem), headers, records)
}

func (w *CSVWriter) writeRecreated(sel *clustering.Selection, stem string) error {
	rec := sel.Reconstructed
	headers := append([]string{"hour"}, rec.Names()...)
	records := make([][]string, 0, rec.Rows())
	for r := 0; r < rec.Rows(); r++ {
		record := make([]string, 0, len(headers))
		record = append(record, strconv.Itoa(r))
		for c := 0; c < rec.Cols(); c++ {
			record = append(record, formatFloat(rec.At(r, c)))
		}
		records = append(records, record)
	}
	return w.WriteCSV(filepath.Join(dirRecreated, stem), headers, records)
}

func (w *CSVWriter) writeAccuracy(sel *clustering.Selection, stem string) error {
	records := make([][]string, 0, len(sel.Accuracy))
	for _, acc := range sel.Accuracy {
		records = append(records, []string{
			acc.Series,
			formatFloat(acc.RMSE),
			formatFloat(acc.RMSEDuration),
			formatFloat(acc.MAE),
		})
	}
	return w.WriteCSV(filepath.Join(dirAccuracy, stem),
		[]string{"series", "rmse", "rmse_duration", "mae"}, records)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

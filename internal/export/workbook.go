package export

import (
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"repdays/internal/clustering"
	apperrors "repdays/internal/errors"
)

const accuracySheet = "accuracy"

// Workbook collects every tested period count into one comparison workbook:
// a sheet of periods and weights per count plus a combined accuracy sheet.
type Workbook struct {
	file     *excelize.File
	logger   *slog.Logger
	accRow   int
	hasSheet bool
}

// NewWorkbook starts an empty comparison workbook.
func NewWorkbook(logger *slog.Logger) (*Workbook, error) {
	const op = "export.NewWorkbook"

	f := excelize.NewFile()
	if _, err := f.NewSheet(accuracySheet); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	if err := f.SetSheetRow(accuracySheet, "A1",
		&[]interface{}{"periods", "series", "rmse", "rmse_duration", "mae"}); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	return &Workbook{file: f, logger: logger, accRow: 2}, nil
}

// AddSelection appends one tested period count to the workbook.
func (w *Workbook) AddSelection(sel *clustering.Selection) error {
	const op = "export.Workbook.AddSelection"

	sheet := fmt.Sprintf("%d periods", sel.Requested)
	if _, err := w.file.NewSheet(sheet); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	w.hasSheet = true

	if err := w.file.SetSheetRow(sheet, "A1", &[]interface{}{"period", "weight", "kind"}); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	for i, p := range sel.Set {
		cell := fmt.Sprintf("A%d", i+2)
		if err := w.file.SetSheetRow(sheet, cell, &[]interface{}{p.Label, p.Weight, string(p.Kind)}); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}

	for _, acc := range sel.Accuracy {
		cell := fmt.Sprintf("A%d", w.accRow)
		row := []interface{}{sel.Requested, acc.Series, acc.RMSE, acc.RMSEDuration, acc.MAE}
		if err := w.file.SetSheetRow(accuracySheet, cell, &row); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
		w.accRow++
	}
	return nil
}

// Save writes the workbook. The default empty sheet is dropped first.
func (w *Workbook) Save(path string) error {
	const op = "export.Workbook.Save"

	if w.hasSheet {
		if err := w.file.DeleteSheet("Sheet1"); err != nil {
			return apperrors.Wrap(apperrors.CodeIO, op, err)
		}
	}
	if err := w.file.SaveAs(path); err != nil {
		return apperrors.Wrap(apperrors.CodeIO, op, err)
	}
	if w.logger != nil {
		w.logger.Info("wrote comparison workbook", slog.String("path", path))
	}
	return w.file.Close()
}

package features

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "repdays/internal/errors"
	"repdays/internal/timeseries"
)

// PCAGroup requests a principal-component reduction over a named subset of
// the collected series.
type PCAGroup struct {
	Name        string
	Columns     []string
	NComponents int
	Scale       bool
}

// PrincipalComponents projects the group's columns onto their leading
// principal components and returns the component columns, named
// {group}_pc{k} with k starting at 1.
//
// Columns are always centred; with Scale they are also divided by their
// standard deviation, a constant column standing in with deviation 1. The
// sign of each component is fixed so that its loadings sum non-negative,
// keeping the projection stable across runs.
func PrincipalComponents(logger *slog.Logger, m *timeseries.Matrix, group PCAGroup) ([]string, [][]float64, error) {
	const op = "features.PrincipalComponents"

	if group.NComponents < 1 {
		return nil, nil, apperrors.Newf(apperrors.CodeInvalidConfig, op,
			"pca group %q requests %d components", group.Name, group.NComponents)
	}
	if group.NComponents > len(group.Columns) {
		return nil, nil, apperrors.Newf(apperrors.CodeInvalidConfig, op,
			"pca group %q requests %d components from %d columns",
			group.Name, group.NComponents, len(group.Columns))
	}

	rows := m.Rows()
	centered := mat.NewDense(rows, len(group.Columns), nil)
	for j, name := range group.Columns {
		idx, ok := m.ColumnIndex(name)
		if !ok {
			return nil, nil, apperrors.Newf(apperrors.CodeMissingSeries, op,
				"pca group %q references unknown series %q", group.Name, name)
		}
		col := m.Col(idx)
		mean, std := stat.MeanStdDev(col, nil)
		if !group.Scale || std == 0 || math.IsNaN(std) {
			std = 1
		}
		for i, v := range col {
			centered.Set(i, j, (v-mean)/std)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(centered, mat.SVDThin) {
		return nil, nil, apperrors.Newf(apperrors.CodeIntegrity, op,
			"svd failed to converge for pca group %q", group.Name)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sigma := svd.Values(nil)

	names := make([]string, group.NComponents)
	cols := make([][]float64, group.NComponents)
	for k := 0; k < group.NComponents; k++ {
		sign := 1.0
		loadSum := 0.0
		for j := 0; j < len(group.Columns); j++ {
			loadSum += v.At(j, k)
		}
		if loadSum < 0 {
			sign = -1
		}

		col := make([]float64, rows)
		for i := 0; i < rows; i++ {
			col[i] = sign * u.At(i, k) * sigma[k]
		}
		names[k] = componentName(group.Name, k+1)
		cols[k] = col
	}

	if logger != nil {
		logger.Debug("pca components computed",
			slog.String("group", group.Name),
			slog.Int("components", group.NComponents),
			slog.Int("columns", len(group.Columns)))
	}
	return names, cols, nil
}

func componentName(group string, k int) string {
	return fmt.Sprintf("%s_pc%d", group, k)
}

package features

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "repdays/internal/errors"
	"repdays/internal/timeseries"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFeatureSeries(t *testing.T, dir, name string, values []float64) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "time,%s\n", name)
	for i, v := range values {
		fmt.Fprintf(&b, "%d,%g\n", i, v)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(b.String()), 0o644))
}

func TestMaxMeanPeriodsPicksHighestWindow(t *testing.T) {
	dir := t.TempDir()

	// Two 1-day windows, second clearly higher.
	values := make([]float64, 48)
	for i := 0; i < 24; i++ {
		values[i] = 1
	}
	for i := 24; i < 48; i++ {
		values[i] = 2
	}
	writeFeatureSeries(t, dir, "load", values)

	indices, err := MaxMeanPeriods(discardLogger(), dir, "load", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, indices)
}

func TestMaxMeanPeriodsExcludesFinalHour(t *testing.T) {
	dir := t.TempDir()

	// Window 0 would win only if its final hour counted toward the mean.
	values := make([]float64, 48)
	for i := 0; i < 23; i++ {
		values[i] = 1
	}
	values[23] = 1000
	for i := 24; i < 48; i++ {
		values[i] = 2
	}
	writeFeatureSeries(t, dir, "load", values)

	indices, err := MaxMeanPeriods(discardLogger(), dir, "load", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, indices)
}

func TestMaxMeanPeriodsFirstOccurrenceWins(t *testing.T) {
	dir := t.TempDir()

	values := make([]float64, 72)
	for i := range values {
		values[i] = 5
	}
	writeFeatureSeries(t, dir, "load", values)

	indices, err := MaxMeanPeriods(discardLogger(), dir, "load", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, indices)
}

func TestMaxMeanPeriodsMultiPeriodWindow(t *testing.T) {
	dir := t.TempDir()

	// Two 2-day windows over a 1-day clustering grid; second window wins and
	// spans grid periods 2 and 3.
	values := make([]float64, 96)
	for i := 48; i < 96; i++ {
		values[i] = 3
	}
	writeFeatureSeries(t, dir, "load", values)

	indices, err := MaxMeanPeriods(discardLogger(), dir, "load", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, indices)
}

func TestMaxMeanPeriodsMisalignedWindowSkipped(t *testing.T) {
	indices, err := MaxMeanPeriods(discardLogger(), t.TempDir(), "load", 3, 2)
	require.NoError(t, err)
	assert.Nil(t, indices)
}

func TestMaxMeanPeriodsMissingSeries(t *testing.T) {
	_, err := MaxMeanPeriods(discardLogger(), t.TempDir(), "absent", 1, 1)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMissingSeries, apperrors.CodeOf(err))
}

func TestPrincipalComponentsCollinearColumns(t *testing.T) {
	m, err := timeseries.NewMatrix(
		[]string{"a", "b"},
		[][]float64{{1, 2, 3, 4}, {2, 4, 6, 8}},
	)
	require.NoError(t, err)

	names, cols, err := PrincipalComponents(discardLogger(), m, PCAGroup{
		Name:        "grp",
		Columns:     []string{"a", "b"},
		NComponents: 1,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"grp_pc1"}, names)
	require.Len(t, cols, 1)

	// Both columns grow together, so the leading component carries all the
	// variance and follows the original ordering.
	want := []float64{-1.5 * math.Sqrt(5), -0.5 * math.Sqrt(5), 0.5 * math.Sqrt(5), 1.5 * math.Sqrt(5)}
	for i, w := range want {
		assert.InDelta(t, w, cols[0][i], 1e-9)
	}
}

func TestPrincipalComponentsScaledConstantColumn(t *testing.T) {
	m, err := timeseries.NewMatrix(
		[]string{"a", "flat"},
		[][]float64{{1, 2, 3, 4}, {7, 7, 7, 7}},
	)
	require.NoError(t, err)

	_, cols, err := PrincipalComponents(discardLogger(), m, PCAGroup{
		Name:        "grp",
		Columns:     []string{"a", "flat"},
		NComponents: 1,
		Scale:       true,
	})
	require.NoError(t, err)
	for _, v := range cols[0] {
		assert.False(t, math.IsNaN(v))
	}
}

func TestPrincipalComponentsUnknownSeries(t *testing.T) {
	m, err := timeseries.NewMatrix([]string{"a"}, [][]float64{{1, 2}})
	require.NoError(t, err)

	_, _, err = PrincipalComponents(discardLogger(), m, PCAGroup{
		Name:        "grp",
		Columns:     []string{"nope"},
		NComponents: 1,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMissingSeries, apperrors.CodeOf(err))
}

func TestPrincipalComponentsTooManyComponents(t *testing.T) {
	m, err := timeseries.NewMatrix([]string{"a"}, [][]float64{{1, 2}})
	require.NoError(t, err)

	_, _, err = PrincipalComponents(discardLogger(), m, PCAGroup{
		Name:        "grp",
		Columns:     []string{"a"},
		NComponents: 2,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidConfig, apperrors.CodeOf(err))
}

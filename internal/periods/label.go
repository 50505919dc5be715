// Package periods defines representative periods, their canonical labels and
// the file-based handoff between the clustering and remapping stages.
package periods

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "repdays/internal/errors"
)

// Codec maps step indices on the clustering grid to canonical period labels
// and back. It is pure and stateless.
type Codec struct {
	// DaysPerPeriod is the number of consecutive calendar days one period
	// covers.
	DaysPerPeriod int
	// DayOffset shifts day numbering relative to the grid origin.
	DayOffset int
}

// DayLabel renders a single-day label such as "D097".
func DayLabel(day int) string {
	return fmt.Sprintf("D%03d", day)
}

// HourLabel renders a time-of-day label such as "H07". Slot counts of 100 or
// more switch to three digits so labels stay fixed-width.
func HourLabel(hour, totalHours int) string {
	if totalHours < 100 {
		return fmt.Sprintf("H%02d", hour)
	}
	return fmt.Sprintf("H%03d", hour)
}

// HourLabels renders the full ordered list of time-of-day labels for n slots,
// numbered from 1.
func HourLabels(n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = HourLabel(i+1, n)
	}
	return labels
}

// Encode converts a step index on the clustering grid into a period label.
// Single-day periods yield "D097"; multi-day periods yield "D097-D099".
func (c Codec) Encode(step int) string {
	day := step*c.DaysPerPeriod - c.DayOffset
	if c.DaysPerPeriod <= 1 {
		return DayLabel(day)
	}
	return DayLabel(day) + "-" + DayLabel(day+c.DaysPerPeriod-1)
}

// Decode converts a period label back into its step index. It is the exact
// inverse of Encode on well-formed input.
func (c Codec) Decode(label string) (int, error) {
	const op = "periods.Codec.Decode"

	start, end, multi, err := parseLabel(label)
	if err != nil {
		return 0, err
	}
	if multi {
		if c.DaysPerPeriod <= 1 {
			return 0, apperrors.Newf(apperrors.CodeBadLabel, op,
				"multi-day label %q on a single-day grid", label)
		}
		if end-start+1 != c.DaysPerPeriod {
			return 0, apperrors.Newf(apperrors.CodeBadLabel, op,
				"label %q spans %d days, grid period is %d", label, end-start+1, c.DaysPerPeriod)
		}
	} else if c.DaysPerPeriod > 1 {
		return 0, apperrors.Newf(apperrors.CodeBadLabel, op,
			"single-day label %q on a %d-day grid", label, c.DaysPerPeriod)
	}

	day := start + c.DayOffset
	if c.DaysPerPeriod > 1 && day%c.DaysPerPeriod != 0 {
		return 0, apperrors.Newf(apperrors.CodeBadLabel, op,
			"label %q does not start on a period boundary", label)
	}
	if c.DaysPerPeriod <= 1 {
		return day, nil
	}
	return day / c.DaysPerPeriod, nil
}

// Expand returns every single-day label covered by the given period label, in
// calendar order. Single-day labels expand to themselves.
func Expand(label string) ([]string, error) {
	start, end, multi, err := parseLabel(label)
	if err != nil {
		return nil, err
	}
	if !multi {
		return []string{label}, nil
	}

	days := make([]string, 0, end-start+1)
	for day := start; day <= end; day++ {
		days = append(days, DayLabel(day))
	}
	return days, nil
}

// parseLabel splits a label into its start and end day numbers. For
// single-day labels start == end and multi is false.
func parseLabel(label string) (start, end int, multi bool, err error) {
	const op = "periods.parseLabel"

	parts := strings.Split(label, "-")
	switch len(parts) {
	case 1:
		start, err = parseDay(parts[0])
		if err != nil {
			return 0, 0, false, apperrors.Wrapf(apperrors.CodeBadLabel, op, err, "label %q", label)
		}
		return start, start, false, nil
	case 2:
		start, err = parseDay(parts[0])
		if err == nil {
			end, err = parseDay(parts[1])
		}
		if err != nil {
			return 0, 0, false, apperrors.Wrapf(apperrors.CodeBadLabel, op, err, "label %q", label)
		}
		if end < start {
			return 0, 0, false, apperrors.Newf(apperrors.CodeBadLabel, op,
				"label %q ends before it starts", label)
		}
		return start, end, true, nil
	default:
		return 0, 0, false, apperrors.Newf(apperrors.CodeBadLabel, op, "label %q", label)
	}
}

func parseDay(s string) (int, error) {
	if len(s) < 4 || s[0] != 'D' {
		return 0, fmt.Errorf("%q is not a day label", s)
	}
	day, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, fmt.Errorf("%q is not a day label", s)
	}
	return day, nil
}

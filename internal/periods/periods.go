package periods

import (
	"sort"

	apperrors "repdays/internal/errors"
)

// Kind classifies how a period entered the representative set.
type Kind string

const (
	// KindTypical marks a period chosen by the clustering algorithm.
	KindTypical Kind = "typical"
	// KindForced marks a period pinned by configuration or a feature rule.
	KindForced Kind = "forced"
	// KindExtreme marks a period pinned to capture a statistical extreme.
	KindExtreme Kind = "extreme"
)

// Period is one representative period. Weight is an occurrence count (the
// number of real calendar days the period stands in for) until the set is
// normalized.
type Period struct {
	Index  int
	Label  string
	Weight float64
	Kind   Kind
}

// Set is an ordered, label-unique collection of periods.
type Set []Period

// Labels returns the period labels in set order.
func (s Set) Labels() []string {
	labels := make([]string, len(s))
	for i, p := range s {
		labels[i] = p.Label
	}
	return labels
}

// TotalWeight returns the sum of all period weights.
func (s Set) TotalWeight() float64 {
	total := 0.0
	for _, p := range s {
		total += p.Weight
	}
	return total
}

// Validate checks that every label appears exactly once.
func (s Set) Validate() error {
	const op = "periods.Set.Validate"
	seen := make(map[string]bool, len(s))
	for _, p := range s {
		if seen[p.Label] {
			return apperrors.Newf(apperrors.CodeBadLabel, op, "duplicate period label %q", p.Label)
		}
		seen[p.Label] = true
	}
	return nil
}

// SortByLabel returns a copy of the set ordered by label.
func (s Set) SortByLabel() Set {
	out := make(Set, len(s))
	copy(out, s)
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Normalize returns a copy of the set with weights scaled to sum to 1.
func (s Set) Normalize() Set {
	total := s.TotalWeight()
	out := make(Set, len(s))
	copy(out, s)
	if total == 0 {
		return out
	}
	for i := range out {
		out[i].Weight /= total
	}
	return out
}

// Disaggregate expands every multi-day period into its constituent single
// days, splitting the period's weight equally across them and dropping the
// multi-day entry. Single-day periods pass through unchanged.
func (s Set) Disaggregate() (Set, error) {
	out := make(Set, 0, len(s))
	for _, p := range s {
		days, err := Expand(p.Label)
		if err != nil {
			return nil, err
		}
		weight := p.Weight / float64(len(days))
		for _, day := range days {
			out = append(out, Period{Label: day, Weight: weight, Kind: p.Kind})
		}
	}
	return out, nil
}

// Run is one entry of a collapsed period sequence: a representative period
// label and how many consecutive grid slots it covers.
type Run struct {
	Label  string
	Length int
}

// Sequence reconstructs which representative period stands in for each
// calendar slot of the source year, with adjacent repeats merged.
type Sequence []Run

// Collapse builds a Sequence from a raw slot-by-slot label assignment.
func Collapse(labels []string) Sequence {
	var seq Sequence
	for _, label := range labels {
		if n := len(seq); n > 0 && seq[n-1].Label == label {
			seq[n-1].Length++
			continue
		}
		seq = append(seq, Run{Label: label, Length: 1})
	}
	return seq
}

// Slots expands the sequence back into one label per grid slot.
func (seq Sequence) Slots() []string {
	var labels []string
	for _, run := range seq {
		for i := 0; i < run.Length; i++ {
			labels = append(labels, run.Label)
		}
	}
	return labels
}

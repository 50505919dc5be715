package periods

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Store persists the two handoff artifacts between the clustering stage and
// the database-remapping stage: a periods table (label -> weight) and a
// sequence table (slot -> label). Plain CSV keeps the boundary inspectable.
type Store struct {
	// PeriodsPath is the location of the canonical periods table.
	PeriodsPath string
	// SequencePath is the location of the slot-to-period sequence table.
	SequencePath string
}

// SavePeriods writes the period set as the canonical handoff artifact.
func (s Store) SavePeriods(set Set) error {
	records := make([][]string, 0, len(set))
	for _, p := range set {
		records = append(records, []string{p.Label, strconv.FormatFloat(p.Weight, 'g', -1, 64)})
	}
	return writeCSV(s.PeriodsPath, []string{"period", "weight"}, records)
}

// LoadPeriods reads the canonical periods table. Loaded periods carry labels
// and weights only; classification is not part of the handoff contract.
func (s Store) LoadPeriods() (Set, error) {
	rows, err := readCSV(s.PeriodsPath, 2)
	if err != nil {
		return nil, err
	}

	set := make(Set, 0, len(rows))
	for i, row := range rows {
		weight, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse weight (row %d) in %s: %w", i+1, s.PeriodsPath, err)
		}
		set = append(set, Period{Label: row[0], Weight: weight})
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// SaveSequence writes the raw slot-by-slot period assignment.
func (s Store) SaveSequence(labels []string) error {
	records := make([][]string, 0, len(labels))
	for i, label := range labels {
		records = append(records, []string{strconv.Itoa(i), label})
	}
	return writeCSV(s.SequencePath, []string{"day", "period"}, records)
}

// LoadSequence reads the slot-by-slot period assignment in slot order.
func (s Store) LoadSequence() ([]string, error) {
	rows, err := readCSV(s.SequencePath, 2)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(rows))
	seen := make([]bool, len(rows))
	for i, row := range rows {
		slot, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("parse slot (row %d) in %s: %w", i+1, s.SequencePath, err)
		}
		if slot < 0 || slot >= len(rows) {
			return nil, fmt.Errorf("slot %d out of range in %s", slot, s.SequencePath)
		}
		if seen[slot] {
			return nil, fmt.Errorf("duplicate slot %d in %s", slot, s.SequencePath)
		}
		seen[slot] = true
		labels[slot] = row[1]
	}
	return labels, nil
}

func writeCSV(path string, header []string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header to %s: %w", path, err)
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write record to %s: %w", path, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func readCSV(path string, wantCols int) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = wantCols
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return rows[1:], nil // drop header
}

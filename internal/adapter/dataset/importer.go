package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"energyscope/internal/domain"
)

// requiredColumns must appear in every scenario CSV header. Column order is free.
var requiredColumns = []string{"scenario", "indicator", "year", "value"}

// ImportCSV reads long-format rows (scenario, indicator, sector, unit, year,
// value) from r and stores them tagged with source. Malformed rows are
// skipped and counted; a missing required column fails the whole file.
func (s *SQLiteStore) ImportCSV(ctx context.Context, r io.Reader, source string) (imported, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, 0, domain.NewSubSystemError("dataset", "ImportCSV", domain.ErrInvalidInput,
			fmt.Sprintf("%s: read header: %v", source, err))
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return 0, 0, domain.NewSubSystemError("dataset", "ImportCSV", domain.ErrInvalidInput,
				fmt.Sprintf("%s: missing column %q", source, c))
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var batch []domain.Observation
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		year, yerr := strconv.Atoi(field(row, "year"))
		value, verr := strconv.ParseFloat(field(row, "value"), 64)
		scenario, indicator := field(row, "scenario"), field(row, "indicator")
		if yerr != nil || verr != nil || scenario == "" || indicator == "" {
			skipped++
			continue
		}
		batch = append(batch, domain.Observation{
			Scenario:  scenario,
			Indicator: indicator,
			Sector:    field(row, "sector"),
			Unit:      field(row, "unit"),
			Year:      year,
			Value:     value,
			Source:    source,
		})
	}

	if err := s.Insert(ctx, batch); err != nil {
		return 0, skipped, err
	}
	s.logger.Debug("dataset imported", "source", source, "rows", len(batch), "skipped", skipped)
	return len(batch), skipped, nil
}

// ImportDir imports every *.csv file in dir, in name order. A missing
// directory is reported as domain.ErrDataUnavailable.
func (s *SQLiteStore) ImportDir(ctx context.Context, dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return 0, err
	}
	if _, statErr := os.Stat(dir); statErr != nil {
		return 0, domain.NewSubSystemError("dataset", "ImportDir", domain.ErrDataUnavailable, dir)
	}
	sort.Strings(matches)

	total := 0
	for _, path := range matches {
		n, err := s.importFile(ctx, path)
		if err != nil {
			return total, err
		}
		total += n
	}
	s.logger.Info("scenario dataset loaded", "dir", dir, "files", len(matches), "observations", total)
	return total, nil
}

func (s *SQLiteStore) importFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	n, skipped, err := s.ImportCSV(ctx, f, filepath.Base(path))
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		s.logger.Warn("skipped malformed dataset rows", "file", filepath.Base(path), "skipped", skipped)
	}
	return n, nil
}

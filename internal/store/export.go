package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"saged/internal/logging"
)

// csvHeader is the column order of exported benchmarks, matching the
// benchmark_records table.
var csvHeader = []string{
	"build_id", "concept", "source_tag", "prompt_text",
	"root_keyword", "branch_of", "direction", "is_baseline", "tier",
}

// WriteCSV streams a build's records as CSV, header first, and returns
// the number of data rows written. The build must exist.
func (s *BenchmarkStore) WriteCSV(w io.Writer, buildID string) (int, error) {
	if _, err := s.GetBuild(buildID); err != nil {
		return 0, err
	}
	rows, err := s.LoadRows(buildID)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			buildID, r.Concept, r.SourceTag, r.PromptText,
			r.RootKeyword, r.BranchOf, string(r.Direction),
			strconv.FormatBool(r.IsBaseline), string(r.Tier),
		}
		if err := cw.Write(record); err != nil {
			return 0, fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("failed to flush csv: %w", err)
	}
	return len(rows), nil
}

// ExportCSV writes a build's records to a CSV file, creating parent
// directories as needed.
func (s *BenchmarkStore) ExportCSV(buildID, path string) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ExportCSV")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		logging.Audit().StoreExport(buildID, path, 0, false, err.Error())
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}

	n, err := s.WriteCSV(f, buildID)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close export file: %w", cerr)
	}
	if err != nil {
		logging.Audit().StoreExport(buildID, path, n, false, err.Error())
		return n, err
	}

	logging.Store("Exported build %s to %s (%d rows)", buildID, path, n)
	logging.Audit().StoreExport(buildID, path, n, true, "")
	return n, nil
}

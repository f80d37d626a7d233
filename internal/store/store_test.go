package store

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"saged/internal/benchmark"
)

func testBenchmark(buildID string, generated time.Time) *benchmark.DomainBenchmark {
	return &benchmark.DomainBenchmark{
		BuildID:     buildID,
		Domain:      "energy",
		GeneratedAt: generated,
		Prompts: []benchmark.PromptRecord{
			{
				ID: "solar/static:0#0", Concept: "solar", SourceTag: "static",
				Text: "Solar farms are spreading.", RootKeyword: "solar",
				OriginSentenceID: "static:0",
			},
			{
				ID: "wind/static:0#0", Concept: "wind", SourceTag: "static",
				Text: "Wind turbines line the ridge.", RootKeyword: "wind",
				OriginSentenceID: "static:0",
			},
		},
		Branches: []benchmark.BranchedPromptRecord{{
			ID: "solar/static:0#0=>wind@forward", Concept: "wind",
			SourceTag: "br_static_cat_solar", Text: "Wind farms are spreading.",
			RootKeyword: "wind", LineageID: "solar/static:0#0",
			Direction: benchmark.DirectionForward,
		}},
		SkippedConcepts: []benchmark.SkippedConcept{{
			Concept: "coal", Kind: benchmark.KindSourceUnavailable, Reason: "no readable source",
		}},
	}
}

func TestNewBenchmarkStoreInitializesSchema(t *testing.T) {
	s, err := NewBenchmarkStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"builds", "benchmark_records", "skipped_concepts"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestSaveBenchmarkRoundTrip(t *testing.T) {
	s, err := NewBenchmarkStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	generated := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	bench := testBenchmark("b-1", generated)
	if err := s.SaveBenchmark(bench); err != nil {
		t.Fatalf("SaveBenchmark failed: %v", err)
	}

	rows, err := s.LoadRows("b-1")
	if err != nil {
		t.Fatalf("LoadRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Concept != "solar" || rows[0].Tier != benchmark.TierAssembled {
		t.Errorf("row 0 = %+v, want assembled solar first", rows[0])
	}
	branch := rows[2]
	if branch.Tier != benchmark.TierBranched {
		t.Errorf("row 2 tier = %s, want branched last", branch.Tier)
	}
	if branch.BranchOf != "solar/static:0#0" || branch.Direction != benchmark.DirectionForward {
		t.Errorf("branch row lost its lineage: %+v", branch)
	}
	if branch.SourceTag != "br_static_cat_solar" {
		t.Errorf("branch source tag = %q", branch.SourceTag)
	}
	if branch.IsBaseline {
		t.Error("branch row marked as baseline")
	}

	skipped, err := s.LoadSkipped("b-1")
	if err != nil {
		t.Fatalf("LoadSkipped failed: %v", err)
	}
	if len(skipped) != 1 {
		t.Fatalf("got %d skipped concepts, want 1", len(skipped))
	}
	sc := skipped[0]
	if sc.Concept != "coal" || sc.Kind != benchmark.KindSourceUnavailable || sc.Reason != "no readable source" {
		t.Errorf("skipped = %+v", sc)
	}

	summary, err := s.GetBuild("b-1")
	if err != nil {
		t.Fatalf("GetBuild failed: %v", err)
	}
	if summary.Domain != "energy" || summary.Prompts != 2 || summary.Branches != 1 || summary.Skipped != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.GeneratedAt.Unix() != generated.Unix() {
		t.Errorf("generated_at = %v, want %v", summary.GeneratedAt, generated)
	}
}

func TestSaveBenchmarkReplacesOnRerun(t *testing.T) {
	s, err := NewBenchmarkStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	generated := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	if err := s.SaveBenchmark(testBenchmark("b-1", generated)); err != nil {
		t.Fatalf("first SaveBenchmark failed: %v", err)
	}

	smaller := testBenchmark("b-1", generated)
	smaller.Prompts = smaller.Prompts[:1]
	smaller.Branches = nil
	smaller.SkippedConcepts = nil
	if err := s.SaveBenchmark(smaller); err != nil {
		t.Fatalf("second SaveBenchmark failed: %v", err)
	}

	rows, err := s.LoadRows("b-1")
	if err != nil {
		t.Fatalf("LoadRows failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows after rerun, want 1", len(rows))
	}
	skipped, err := s.LoadSkipped("b-1")
	if err != nil {
		t.Fatalf("LoadSkipped failed: %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("stale skipped concepts survived the rerun: %v", skipped)
	}
	summary, err := s.GetBuild("b-1")
	if err != nil {
		t.Fatalf("GetBuild failed: %v", err)
	}
	if summary.Prompts != 1 || summary.Branches != 0 || summary.Skipped != 0 {
		t.Errorf("summary not replaced: %+v", summary)
	}
}

func TestListBuildsNewestFirst(t *testing.T) {
	s, err := NewBenchmarkStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"b-old", "b-mid", "b-new"} {
		if err := s.SaveBenchmark(testBenchmark(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveBenchmark %s failed: %v", id, err)
		}
	}
	other := testBenchmark("b-other", base.Add(30*time.Minute))
	other.Domain = "climate"
	if err := s.SaveBenchmark(other); err != nil {
		t.Fatalf("SaveBenchmark b-other failed: %v", err)
	}

	builds, err := s.ListBuilds("", 0)
	if err != nil {
		t.Fatalf("ListBuilds failed: %v", err)
	}
	if len(builds) != 4 {
		t.Fatalf("got %d builds, want 4", len(builds))
	}
	if builds[0].BuildID != "b-new" || builds[3].BuildID != "b-old" {
		t.Errorf("builds out of order: %v then %v", builds[0].BuildID, builds[3].BuildID)
	}

	energy, err := s.ListBuilds("energy", 0)
	if err != nil {
		t.Fatalf("ListBuilds(energy) failed: %v", err)
	}
	if len(energy) != 3 {
		t.Errorf("got %d energy builds, want 3", len(energy))
	}
	for _, b := range energy {
		if b.Domain != "energy" {
			t.Errorf("domain filter leaked build %s (%s)", b.BuildID, b.Domain)
		}
	}

	limited, err := s.ListBuilds("", 1)
	if err != nil {
		t.Fatalf("ListBuilds(limit=1) failed: %v", err)
	}
	if len(limited) != 1 || limited[0].BuildID != "b-new" {
		t.Errorf("limited listing = %v", limited)
	}
}

func TestGetBuildUnknown(t *testing.T) {
	s, err := NewBenchmarkStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := s.GetBuild("nope"); err == nil {
		t.Error("expected an error for an unknown build")
	}
}

func TestLoadRowsUnknownBuildIsEmpty(t *testing.T) {
	s, err := NewBenchmarkStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	rows, err := s.LoadRows("nope")
	if err != nil {
		t.Fatalf("LoadRows failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows for an unknown build", len(rows))
	}
}

func TestExportCSV(t *testing.T) {
	s, err := NewBenchmarkStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	generated := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	if err := s.SaveBenchmark(testBenchmark("b-1", generated)); err != nil {
		t.Fatalf("SaveBenchmark failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "exports", "b-1.csv")
	n, err := s.ExportCSV("b-1", path)
	if err != nil {
		t.Fatalf("ExportCSV failed: %v", err)
	}
	if n != 3 {
		t.Errorf("exported %d rows, want 3", n)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open export: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse export: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d csv lines, want header plus 3 rows", len(records))
	}
	if records[0][0] != "build_id" || records[0][8] != "tier" {
		t.Errorf("header = %v", records[0])
	}
	first := records[1]
	if first[0] != "b-1" || first[1] != "solar" || first[3] != "Solar farms are spreading." {
		t.Errorf("first row = %v", first)
	}
	last := records[3]
	if last[5] != "solar/static:0#0" || last[6] != "forward" || last[7] != "false" || last[8] != "branched" {
		t.Errorf("branch row = %v", last)
	}
}

func TestWriteCSVUnknownBuild(t *testing.T) {
	s, err := NewBenchmarkStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := s.ExportCSV("nope", filepath.Join(t.TempDir(), "out.csv")); err == nil {
		t.Error("expected an error exporting an unknown build")
	}
}

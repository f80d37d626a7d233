package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"saged/internal/config"
)

func writeSourceFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestStaticProviderRecords(t *testing.T) {
	p := NewStaticProvider([]string{
		"Solar panels on rooftops cut household electricity bills.",
		"   ",
		"Solar output peaks around noon on clear days.",
	}, 0)

	records, err := p.Sentences(context.Background(), "solar", nil)
	if err != nil {
		t.Fatalf("Sentences() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Position != 0 || records[1].Position != 2 {
		t.Errorf("positions = %d, %d; want 0, 2", records[0].Position, records[1].Position)
	}
	for _, r := range records {
		if r.Concept != "solar" {
			t.Errorf("concept = %q, want solar", r.Concept)
		}
		if r.SourceTag != StaticTag {
			t.Errorf("source tag = %q, want %q", r.SourceTag, StaticTag)
		}
	}
}

func TestStaticProviderCap(t *testing.T) {
	p := NewStaticProvider([]string{"first sentence", "second sentence", "third sentence"}, 2)
	records, err := p.Sentences(context.Background(), "solar", nil)
	if err != nil {
		t.Fatalf("Sentences() error: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected cap of 2 records, got %d", len(records))
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.SourceConfig{Provider: "static"})
	if err != nil {
		t.Fatalf("static provider error: %v", err)
	}
	if _, ok := p.(*StaticProvider); !ok {
		t.Errorf("expected *StaticProvider, got %T", p)
	}

	p, err = NewProvider(config.SourceConfig{Provider: "files", Paths: []string{"a.txt"}})
	if err != nil {
		t.Fatalf("files provider error: %v", err)
	}
	if _, ok := p.(*FileProvider); !ok {
		t.Errorf("expected *FileProvider, got %T", p)
	}

	if _, err := NewProvider(config.SourceConfig{Provider: "wikipedia"}); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestNewProviderDefaultsToStatic(t *testing.T) {
	p, err := NewProvider(config.SourceConfig{})
	if err != nil {
		t.Fatalf("NewProvider() error: %v", err)
	}
	if _, ok := p.(*StaticProvider); !ok {
		t.Errorf("expected *StaticProvider for empty provider name, got %T", p)
	}
}

func TestFileProviderPlainText(t *testing.T) {
	dir := t.TempDir()
	doc := "Solar power converts sunlight into electricity at utility scale.\n" +
		"Coal plants are closing faster than analysts had expected.\n" +
		"Rooftop solar installations doubled in the region last year."
	path := writeSourceFile(t, dir, "energy.txt", doc)

	p := NewFileProvider([]string{path}, 6, 0)
	records, err := p.Sentences(context.Background(), "solar", []string{"solar"})
	if err != nil {
		t.Fatalf("Sentences() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 keyword sentences, got %d: %#v", len(records), records)
	}
	if records[0].Text != "Solar power converts sunlight into electricity at utility scale." {
		t.Errorf("unexpected first sentence: %q", records[0].Text)
	}
	if records[0].SourceTag != path || records[1].SourceTag != path {
		t.Errorf("source tags should be the file path %q", path)
	}
	if records[0].Position != 0 || records[1].Position != 1 {
		t.Errorf("positions = %d, %d; want 0, 1", records[0].Position, records[1].Position)
	}
}

func TestFileProviderHTML(t *testing.T) {
	dir := t.TempDir()
	page := `<html><head><style>p { color: red; }</style></head><body>
<nav>Home | About | Energy topics index page</nav>
<p>Solar adoption is <b>accelerating</b> in sunny coastal regions everywhere.</p>
<script>var solar = "not a sentence about anything";</script>
<figcaption>A solar array photographed near the city reservoir yesterday.</figcaption>
</body></html>`
	path := writeSourceFile(t, dir, "article.html", page)

	p := NewFileProvider([]string{path}, 6, 0)
	records, err := p.Sentences(context.Background(), "solar", []string{"solar"})
	if err != nil {
		t.Fatalf("Sentences() error: %v", err)
	}
	want := []string{
		"Solar adoption is accelerating in sunny coastal regions everywhere.",
		"A solar array photographed near the city reservoir yesterday.",
	}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d: %#v", len(want), len(records), records)
	}
	for i, w := range want {
		if records[i].Text != w {
			t.Errorf("record %d = %q, want %q", i, records[i].Text, w)
		}
	}
}

func TestFileProviderPreparedRecords(t *testing.T) {
	dir := t.TempDir()
	lines := `{"text": "Solar credits changed the economics of rooftop installations."}

{"text": "Wind farms now undercut coal on wholesale price.", "source_tag": "market-report", "position": 9}
{"text": "   "}
{"text": "Grid operators curtail solar output on mild spring afternoons."}`
	path := writeSourceFile(t, dir, "prepared.jsonl", lines)

	p := NewFileProvider([]string{path}, 6, 0)
	records, err := p.Sentences(context.Background(), "solar", []string{"solar"})
	if err != nil {
		t.Fatalf("Sentences() error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].SourceTag != path || records[0].Position != 0 {
		t.Errorf("record 0 tag/position = %q/%d, want %q/0", records[0].SourceTag, records[0].Position, path)
	}
	if records[1].SourceTag != "market-report" || records[1].Position != 9 {
		t.Errorf("record 1 should keep its own tag and position, got %q/%d", records[1].SourceTag, records[1].Position)
	}
	if records[2].Position != 2 {
		t.Errorf("record 2 position = %d, want 2", records[2].Position)
	}
}

func TestFileProviderSkipsUnreadablePath(t *testing.T) {
	dir := t.TempDir()
	good := writeSourceFile(t, dir, "good.txt",
		"Solar generation records were broken twice this past summer.")

	p := NewFileProvider([]string{filepath.Join(dir, "missing.txt"), good}, 6, 0)
	records, err := p.Sentences(context.Background(), "solar", []string{"solar"})
	if err != nil {
		t.Fatalf("one good path should be enough: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record from the readable file, got %d", len(records))
	}
}

func TestFileProviderFailsWhenNothingReadable(t *testing.T) {
	dir := t.TempDir()
	p := NewFileProvider([]string{filepath.Join(dir, "missing.txt")}, 6, 0)
	if _, err := p.Sentences(context.Background(), "solar", []string{"solar"}); err == nil {
		t.Error("expected error when no path is readable")
	}
}

func TestFileProviderMalformedPreparedLine(t *testing.T) {
	dir := t.TempDir()
	path := writeSourceFile(t, dir, "broken.jsonl", `{"text": "valid line about solar power here"}
not json at all`)

	p := NewFileProvider([]string{path}, 6, 0)
	if _, err := p.Sentences(context.Background(), "solar", []string{"solar"}); err == nil {
		t.Error("expected error when the only source file is malformed")
	}
}

func TestFileProviderSentenceCap(t *testing.T) {
	dir := t.TempDir()
	doc := "Solar output rose again during the first quarter report.\n" +
		"Solar installers hired thousands of new workers last year.\n" +
		"Solar subsidies remain contested in several state legislatures."
	path := writeSourceFile(t, dir, "energy.txt", doc)

	p := NewFileProvider([]string{path}, 6, 2)
	records, err := p.Sentences(context.Background(), "solar", []string{"solar"})
	if err != nil {
		t.Fatalf("Sentences() error: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected cap of 2 records, got %d", len(records))
	}
}

func TestFileProviderContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewFileProvider([]string{"anything.txt"}, 6, 0)
	if _, err := p.Sentences(ctx, "solar", nil); err == nil {
		t.Error("expected context cancellation error")
	}
}

// Package store persists merged benchmarks in SQLite and exports them
// as CSV. One row per prompt or branch, keyed by build id, with the
// skipped concepts of each build kept alongside.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"saged/internal/benchmark"
	"saged/internal/logging"
)

// BenchmarkStore is the SQLite-backed benchmark archive. Safe for
// concurrent use; the connection pool is pinned to one connection
// because modernc sqlite serializes writers anyway.
type BenchmarkStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// BuildSummary is one build's header row.
type BuildSummary struct {
	BuildID     string    `json:"build_id"`
	Domain      string    `json:"domain"`
	GeneratedAt time.Time `json:"generated_at"`
	Prompts     int       `json:"prompts"`
	Branches    int       `json:"branches"`
	Skipped     int       `json:"skipped"`
}

// NewBenchmarkStore opens or creates the database at the given path.
func NewBenchmarkStore(path string) (*BenchmarkStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewBenchmarkStore")
	defer timer.Stop()

	logging.Store("Opening benchmark store at %s", path)

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &BenchmarkStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Benchmark store schema ready")
	return s, nil
}

// initialize creates the required tables.
func (s *BenchmarkStore) initialize() error {
	buildsTable := `
	CREATE TABLE IF NOT EXISTS builds (
		build_id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		generated_at DATETIME NOT NULL,
		prompts INTEGER NOT NULL DEFAULT 0,
		branches INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_builds_domain ON builds(domain);
	`

	recordsTable := `
	CREATE TABLE IF NOT EXISTS benchmark_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		concept TEXT NOT NULL,
		source_tag TEXT,
		prompt_text TEXT NOT NULL,
		root_keyword TEXT,
		branch_of TEXT,
		direction TEXT,
		is_baseline INTEGER NOT NULL DEFAULT 0,
		tier TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_build ON benchmark_records(build_id);
	CREATE INDEX IF NOT EXISTS idx_records_concept ON benchmark_records(build_id, concept);
	`

	skippedTable := `
	CREATE TABLE IF NOT EXISTS skipped_concepts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		concept TEXT NOT NULL,
		kind TEXT NOT NULL,
		reason TEXT,
		UNIQUE(build_id, concept)
	);
	CREATE INDEX IF NOT EXISTS idx_skipped_build ON skipped_concepts(build_id);
	`

	for _, table := range []string{buildsTable, recordsTable, skippedTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *BenchmarkStore) Close() error {
	return s.db.Close()
}

// SaveBenchmark writes a merged benchmark: the build header, every
// flattened record, and the skipped concepts, in one transaction.
// Saving the same build id again replaces its previous contents.
func (s *BenchmarkStore) SaveBenchmark(bench *benchmark.DomainBenchmark) error {
	timer := logging.StartTimer(logging.CategoryStore, "SaveBenchmark")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := bench.Rows()
	err := s.saveLocked(bench, rows)
	if err != nil {
		logging.StoreError("Failed to save build %s: %v", bench.BuildID, err)
		logging.Audit().StoreWrite(bench.BuildID, len(rows), false, err.Error())
		return err
	}

	logging.Store("Saved build %s: %d records, %d skipped concepts",
		bench.BuildID, len(rows), len(bench.SkippedConcepts))
	logging.Audit().StoreWrite(bench.BuildID, len(rows), true, "")
	return nil
}

func (s *BenchmarkStore) saveLocked(bench *benchmark.DomainBenchmark, rows []benchmark.Row) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO builds (build_id, domain, generated_at, prompts, branches, skipped)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		bench.BuildID, bench.Domain, bench.GeneratedAt.UTC(),
		len(bench.Prompts), len(bench.Branches), len(bench.SkippedConcepts),
	); err != nil {
		return fmt.Errorf("failed to write build header: %w", err)
	}

	// Replace semantics for reruns under the same id.
	if _, err := tx.Exec("DELETE FROM benchmark_records WHERE build_id = ?", bench.BuildID); err != nil {
		return fmt.Errorf("failed to clear previous records: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM skipped_concepts WHERE build_id = ?", bench.BuildID); err != nil {
		return fmt.Errorf("failed to clear previous skips: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO benchmark_records
		 (build_id, concept, source_tag, prompt_text, root_keyword, branch_of, direction, is_baseline, tier)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(
			bench.BuildID, row.Concept, row.SourceTag, row.PromptText,
			row.RootKeyword, row.BranchOf, string(row.Direction),
			boolToInt(row.IsBaseline), string(row.Tier),
		); err != nil {
			return fmt.Errorf("failed to insert record for %s: %w", row.Concept, err)
		}
	}

	for _, sc := range bench.SkippedConcepts {
		if _, err := tx.Exec(
			"INSERT INTO skipped_concepts (build_id, concept, kind, reason) VALUES (?, ?, ?, ?)",
			bench.BuildID, sc.Concept, string(sc.Kind), sc.Reason,
		); err != nil {
			return fmt.Errorf("failed to insert skipped concept %s: %w", sc.Concept, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit build %s: %w", bench.BuildID, err)
	}
	return nil
}

// LoadRows returns a build's records in their persisted order:
// assembled rows first, then branched.
func (s *BenchmarkStore) LoadRows(buildID string) ([]benchmark.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT concept, source_tag, prompt_text, root_keyword, branch_of, direction, is_baseline, tier
		 FROM benchmark_records WHERE build_id = ? ORDER BY id`,
		buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []benchmark.Row
	for rows.Next() {
		var r benchmark.Row
		var direction, tier string
		var isBaseline int
		if err := rows.Scan(&r.Concept, &r.SourceTag, &r.PromptText, &r.RootKeyword,
			&r.BranchOf, &direction, &isBaseline, &tier); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Direction = benchmark.Direction(direction)
		r.IsBaseline = isBaseline != 0
		r.Tier = benchmark.Tier(tier)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}

	logging.StoreDebug("Loaded %d records for build %s", len(out), buildID)
	return out, nil
}

// LoadSkipped returns the skipped concepts recorded for a build.
func (s *BenchmarkStore) LoadSkipped(buildID string) ([]benchmark.SkippedConcept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT concept, kind, reason FROM skipped_concepts WHERE build_id = ? ORDER BY id",
		buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query skipped concepts: %w", err)
	}
	defer rows.Close()

	var out []benchmark.SkippedConcept
	for rows.Next() {
		var sc benchmark.SkippedConcept
		var kind string
		if err := rows.Scan(&sc.Concept, &kind, &sc.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan skipped concept: %w", err)
		}
		sc.Kind = benchmark.ErrorKind(kind)
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read skipped concepts: %w", err)
	}
	return out, nil
}

// GetBuild returns one build's header.
func (s *BenchmarkStore) GetBuild(buildID string) (BuildSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBuildLocked(buildID)
}

func (s *BenchmarkStore) getBuildLocked(buildID string) (BuildSummary, error) {
	var b BuildSummary
	err := s.db.QueryRow(
		"SELECT build_id, domain, generated_at, prompts, branches, skipped FROM builds WHERE build_id = ?",
		buildID,
	).Scan(&b.BuildID, &b.Domain, &b.GeneratedAt, &b.Prompts, &b.Branches, &b.Skipped)
	if err == sql.ErrNoRows {
		return BuildSummary{}, fmt.Errorf("no build with id %s", buildID)
	}
	if err != nil {
		return BuildSummary{}, fmt.Errorf("failed to query build %s: %w", buildID, err)
	}
	return b, nil
}

// ListBuilds returns build headers, newest first. Domain narrows the
// listing when non-empty; limit <= 0 means a default page of 50.
func (s *BenchmarkStore) ListBuilds(domain string, limit int) ([]BuildSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := "SELECT build_id, domain, generated_at, prompts, branches, skipped FROM builds"
	args := []interface{}{}
	if domain != "" {
		query += " WHERE domain = ?"
		args = append(args, domain)
	}
	query += " ORDER BY generated_at DESC, build_id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var out []BuildSummary
	for rows.Next() {
		var b BuildSummary
		if err := rows.Scan(&b.BuildID, &b.Domain, &b.GeneratedAt, &b.Prompts, &b.Branches, &b.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read builds: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

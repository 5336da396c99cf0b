// Package history keeps an append-only SQLite log of every processing
// attempt, including the failed ones the JSONL logs never see.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Agfare/comet-watcher/internal/logging"
	"github.com/Agfare/comet-watcher/internal/processor"
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Attempt is one row of the attempts table.
type Attempt struct {
	ID        string
	File      string
	Key       string
	Status    processor.Status
	Score     *float64
	Warning   bool
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// Store is the SQLite-backed attempt log.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
	now    func() time.Time
}

// Open initializes the database at path, creating it if needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path, now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.HistoryDebug("history database ready at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	attemptsTable := `
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		file TEXT NOT NULL,
		record_key TEXT,
		status TEXT NOT NULL,
		score REAL,
		warning INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_file ON attempts(file);
	`
	if _, err := s.db.Exec(attemptsTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Record implements processor.Recorder. Failures are logged, never returned.
func (s *Store) Record(ctx context.Context, out processor.Outcome) {
	a := Attempt{
		File:     out.File,
		Key:      out.Key,
		Status:   out.Status,
		Duration: out.Duration,
	}
	if out.Result != nil {
		score := out.Result.Score
		a.Score = &score
		a.Warning = out.Result.Warning
	}
	if out.Err != nil {
		a.Error = out.Err.Error()
	}
	if err := s.Insert(ctx, a); err != nil {
		logging.HistoryWarn("failed to record attempt for %s: %v", out.File, err)
	}
}

// Insert stores a. Empty ID and zero CreatedAt are filled in.
func (s *Store) Insert(ctx context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	var score sql.NullFloat64
	if a.Score != nil {
		score = sql.NullFloat64{Float64: *a.Score, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, file, record_key, status, score, warning, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.File, a.Key, string(a.Status), score, boolToInt(a.Warning), a.Error,
		a.Duration.Milliseconds(), a.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	logging.HistoryDebug("recorded %s attempt %s for %s", a.Status, a.ID, a.File)
	return nil
}

// Recent returns up to limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file, record_key, status, score, warning, error, duration_ms, created_at
		FROM attempts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			a          Attempt
			key, errS  sql.NullString
			status     string
			score      sql.NullFloat64
			warning    int64
			durationMs int64
			createdAt  string
		)
		if err := rows.Scan(&a.ID, &a.File, &key, &status, &score, &warning, &errS, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Key = key.String
		a.Status = processor.Status(status)
		if score.Valid {
			v := score.Float64
			a.Score = &v
		}
		a.Warning = warning != 0
		a.Error = errS.String
		a.Duration = time.Duration(durationMs) * time.Millisecond
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			a.CreatedAt = t
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// CountByStatus returns the number of attempts per status.
func (s *Store) CountByStatus(ctx context.Context) (map[processor.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM attempts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	defer rows.Close()

	counts := make(map[processor.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[processor.Status(status)] = n
	}
	return counts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package store persists sweep results in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/admm-attack/internal/experiment"
	_ "modernc.org/sqlite" // SQLite driver
)

// MemoryPath opens a transient in-process database.
const MemoryPath = ":memory:"

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("store: run not found")

// Run describes one stored sweep.
type Run struct {
	ID        string          `json:"id"`
	Label     string          `json:"label,omitempty"`
	Config    json.RawMessage `json:"config"`
	CreatedAt time.Time       `json:"created_at"`
	Trials    int             `json:"trials"`
}

// EpsMean is the aggregate distance at one budget.
type EpsMean struct {
	Eps          float64 `json:"eps"`
	MeanDistance float64 `json:"mean_distance"`
	Trials       int     `json:"trials"`
}

// SQLiteResultStore stores runs and their trials. It is safe for
// concurrent use.
type SQLiteResultStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// Open opens or creates the database at path. MemoryPath keeps everything
// in memory for the lifetime of the store.
func Open(path string) (*SQLiteResultStore, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer; it also pins the in-memory
	// database to one connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteResultStore{db: db, dbPath: path}, nil
}

// Path returns the path the store was opened with.
func (s *SQLiteResultStore) Path() string {
	return s.dbPath
}

// CreateRun registers a new run and returns its ID. cfg is stored as JSON.
func (s *SQLiteResultStore) CreateRun(ctx context.Context, label string, cfg any) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, label, config, created_at) VALUES (?, ?, ?, ?)`,
		id, label, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// RecordTrial stores one trial of runID. Recording the same (signal, eps)
// twice replaces the earlier row.
func (s *SQLiteResultStore) RecordTrial(ctx context.Context, runID string, t experiment.Trial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trials (
			run_id, signal, eps, distance, clean_iters, attacked_iters, clean_cosine, attacked_cosine
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, t.Signal, t.Eps, t.Distance, t.CleanIters, t.AttackedIters, t.CleanCosine, t.AttackedCosine)
	if err != nil {
		return fmt.Errorf("failed to insert trial: %w", err)
	}
	return nil
}

// TrialSink binds the store to runID so it can receive trials from an
// experiment.Runner.
func (s *SQLiteResultStore) TrialSink(runID string) experiment.Sink {
	return &trialSink{store: s, runID: runID}
}

type trialSink struct {
	store *SQLiteResultStore
	runID string
}

func (ts *trialSink) RecordTrial(ctx context.Context, t experiment.Trial) error {
	return ts.store.RecordTrial(ctx, ts.runID, t)
}

// MeanDistanceByEps aggregates the trials of runID per budget, ordered by eps.
func (s *SQLiteResultStore) MeanDistanceByEps(ctx context.Context, runID string) ([]EpsMean, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT eps, AVG(distance), COUNT(*)
		FROM trials
		WHERE run_id = ?
		GROUP BY eps
		ORDER BY eps`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query means: %w", err)
	}
	defer rows.Close()

	var out []EpsMean
	for rows.Next() {
		var m EpsMean
		if err := rows.Scan(&m.Eps, &m.MeanDistance, &m.Trials); err != nil {
			return nil, fmt.Errorf("failed to scan mean: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Trials returns every trial of runID ordered by signal then eps.
func (s *SQLiteResultStore) Trials(ctx context.Context, runID string) ([]experiment.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT signal, eps, distance, clean_iters, attacked_iters, clean_cosine, attacked_cosine
		FROM trials
		WHERE run_id = ?
		ORDER BY signal, eps`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trials: %w", err)
	}
	defer rows.Close()

	var out []experiment.Trial
	for rows.Next() {
		var t experiment.Trial
		var cleanCos, attackedCos sql.NullFloat64
		if err := rows.Scan(&t.Signal, &t.Eps, &t.Distance, &t.CleanIters, &t.AttackedIters, &cleanCos, &attackedCos); err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		t.CleanCosine = cleanCos.Float64
		t.AttackedCosine = attackedCos.Float64
		out = append(out, t)
	}
	return out, rows.Err()
}

// Runs lists all runs, newest first.
func (s *SQLiteResultStore) Runs(ctx context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, COALESCE(r.label, ''), r.config, r.created_at, COUNT(t.run_id)
		FROM runs r
		LEFT JOIN trials t ON t.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC, r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var config, createdAt string
		if err := rows.Scan(&r.ID, &r.Label, &config, &createdAt, &r.Trials); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Config = json.RawMessage(config)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = ts
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its trials.
func (s *SQLiteResultStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// requireRun must be called with s.mu held.
func (s *SQLiteResultStore) requireRun(ctx context.Context, runID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up run: %w", err)
	}
	return nil
}

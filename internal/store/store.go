// Package store handles SQLite persistence of run history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/thermopack/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Run kinds recorded by the CLI.
const (
	KindGenerate = "generate"
	KindExport   = "export"
	KindWeights  = "weights"
)

// Store wraps SQLite access for run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			rooms INTEGER NOT NULL,
			points INTEGER NOT NULL,
			artifact_path TEXT NOT NULL,
			artifact_bytes INTEGER NOT NULL,
			seed INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS run_windows (
			run_id TEXT NOT NULL,
			window_label TEXT NOT NULL,
			room INTEGER NOT NULL,
			name TEXT NOT NULL,
			size INTEGER NOT NULL,
			min_c REAL NOT NULL,
			max_c REAL NOT NULL,
			mean_c REAL NOT NULL,
			PRIMARY KEY (run_id, window_label, room)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a finished run and its per-window statistics. A run
// without an id gets a fresh UUID. It returns the stored id.
func (s *Store) InsertRun(ctx context.Context, run model.RunRecord, windows []model.WindowStat) (id string, err error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at, finished_at, rooms, points, artifact_path, artifact_bytes, seed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Kind,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Rooms,
		run.Points,
		run.ArtifactPath,
		run.ArtifactBytes,
		run.Seed,
	)
	if err != nil {
		return "", err
	}

	if len(windows) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO run_windows (run_id, window_label, room, name, size, min_c, max_c, mean_c)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if perr != nil {
			err = perr
			return "", err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, ws := range windows {
			if _, err = stmt.ExecContext(ctx, run.ID, ws.Window, ws.Room, ws.Name, ws.Size, ws.MinC, ws.MaxC, ws.MeanC); err != nil {
				return "", err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return run.ID, nil
}

// ListRuns returns the most recent runs first. An empty kind matches every
// run; limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, kind string, limit int) ([]model.RunRecord, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, kind)
	}
	query := fmt.Sprintf(`SELECT id, kind, started_at, finished_at, rooms, points, artifact_path, artifact_bytes, seed
		FROM runs
		WHERE %s
		ORDER BY finished_at DESC`, strings.Join(clauses, " AND "))
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunRecord
	for rows.Next() {
		var run model.RunRecord
		var startedAt, finishedAt string
		if err := rows.Scan(&run.ID, &run.Kind, &startedAt, &finishedAt, &run.Rooms, &run.Points,
			&run.ArtifactPath, &run.ArtifactBytes, &run.Seed); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListWindowStats returns the statistics recorded for one run in insertion
// order.
func (s *Store) ListWindowStats(ctx context.Context, runID string) ([]model.WindowStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT window_label, room, name, size, min_c, max_c, mean_c
		 FROM run_windows
		 WHERE run_id = ?
		 ORDER BY rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.WindowStat
	for rows.Next() {
		var ws model.WindowStat
		if err := rows.Scan(&ws.Window, &ws.Room, &ws.Name, &ws.Size, &ws.MinC, &ws.MaxC, &ws.MeanC); err != nil {
			return nil, err
		}
		result = append(result, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"cardflow/internal/job"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS job_snapshots (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	data       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_snapshots_status ON job_snapshots(status);
`

// SQLiteStore keeps one JSON row per job in a local SQLite database. The
// default store for single-node deployments.
type SQLiteStore struct {
	db   *sql.DB
	path string
	log  *slog.Logger
}

// OpenSQLite initializes or connects to the snapshot database under dir.
func OpenSQLite(dir string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dbPath := filepath.Join(dir, "cardflow.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	logger.Debug("snapshot store opened", "path", dbPath)
	return &SQLiteStore{db: db, path: dbPath, log: logger}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, j job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_snapshots (id, status, created_at, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, data=excluded.data`,
		j.ID.String(), string(j.Status), j.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"), string(data))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id uuid.UUID) (job.Job, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM job_snapshots WHERE id = ?`, id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return job.Job{}, job.ErrNotFound
	}
	if err != nil {
		return job.Job{}, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot([]byte(data))
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]job.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM job_snapshots ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []job.Job
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		j, err := decodeSnapshot([]byte(data))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func decodeSnapshot(data []byte) (job.Job, error) {
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return job.Job{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return j, nil
}

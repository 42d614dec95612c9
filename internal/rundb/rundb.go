// Package rundb stores training and evaluation runs in a local sqlite
// database: run records, per-step metrics and checkpoint paths.
package rundb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the sqlite handle.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run database: %w", err)
	}
	d := &DB{db}
	if err := d.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (db *DB) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Not closing m: that would close the underlying DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Run is one recorded training or evaluation run.
type Run struct {
	ID         string
	Kind       string
	Config     string
	Status     string
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// CreateRun inserts a new run of the given kind, storing the serialized
// configuration, and returns its generated ID.
func (db *DB) CreateRun(kind, config string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO runs (id, kind, config) VALUES (?, ?, ?)`, id, kind, config)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run finished or failed.
func (db *DB) FinishRun(id, status string) error {
	res, err := db.Exec(`UPDATE runs SET status = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish run: no run with id %s", id)
	}
	return nil
}

// GetRun loads one run by ID.
func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	var finished sql.NullTime
	err := db.QueryRow(
		`SELECT id, kind, config, status, created_at, finished_at FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Kind, &r.Config, &r.Status, &r.CreatedAt, &finished)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return r, nil
}

// ListRuns returns all runs, newest first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.Query(
		`SELECT id, kind, config, status, created_at, finished_at FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Kind, &r.Config, &r.Status, &r.CreatedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MetricPoint is one logged measurement.
type MetricPoint struct {
	Step  int64
	Value float64
}

// LogMetric records one named measurement at a step.
func (db *DB) LogMetric(runID string, step int64, name string, value float64) error {
	_, err := db.Exec(
		`INSERT INTO run_metrics (run_id, step, name, value) VALUES (?, ?, ?, ?)`,
		runID, step, name, value)
	if err != nil {
		return fmt.Errorf("log metric %s for run %s: %w", name, runID, err)
	}
	return nil
}

// Metrics returns the series for one metric name, ordered by step.
func (db *DB) Metrics(runID, name string) ([]MetricPoint, error) {
	rows, err := db.Query(
		`SELECT step, value FROM run_metrics WHERE run_id = ? AND name = ? ORDER BY step`,
		runID, name)
	if err != nil {
		return nil, fmt.Errorf("metrics %s for run %s: %w", name, runID, err)
	}
	defer rows.Close()

	var out []MetricPoint
	for rows.Next() {
		var p MetricPoint
		if err := rows.Scan(&p.Step, &p.Value); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Checkpoint is one saved model file.
type Checkpoint struct {
	RunID     string
	Step      int64
	Path      string
	CreatedAt time.Time
}

// RecordCheckpoint notes a checkpoint file written at a step.
func (db *DB) RecordCheckpoint(runID string, step int64, path string) error {
	_, err := db.Exec(
		`INSERT INTO checkpoints (run_id, step, path) VALUES (?, ?, ?)`,
		runID, step, path)
	if err != nil {
		return fmt.Errorf("record checkpoint for run %s: %w", runID, err)
	}
	return nil
}

// Checkpoints returns the checkpoints of a run ordered by step.
func (db *DB) Checkpoints(runID string) ([]Checkpoint, error) {
	rows, err := db.Query(
		`SELECT run_id, step, path, created_at FROM checkpoints WHERE run_id = ? ORDER BY step`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("checkpoints for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var c Checkpoint
		if err := rows.Scan(&c.RunID, &c.Step, &c.Path, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LatestCheckpoint returns the highest-step checkpoint of a run.
func (db *DB) LatestCheckpoint(runID string) (Checkpoint, error) {
	var c Checkpoint
	err := db.QueryRow(
		`SELECT run_id, step, path, created_at FROM checkpoints WHERE run_id = ? ORDER BY step DESC LIMIT 1`,
		runID).Scan(&c.RunID, &c.Step, &c.Path, &c.CreatedAt)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("latest checkpoint for run %s: %w", runID, err)
	}
	return c, nil
}

// Package storage persists stitching runs in SQLite: the parameters and
// statistics of each run, the connections it applied and the resulting
// samples, so a run's trajectories can be reloaded later.
package storage

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
	_ "modernc.org/sqlite"

	"ptvstitch/internal/models"
)

// schema.sql creates the run, connection and sample tables.
//
//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// DB is an SQLite database holding stitching runs.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open run database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply run schema: %w", err)
	}

	return &DB{db}, nil
}

// Run is one persisted stitching run.
type Run struct {
	RunID      string          `json:"run_id"`
	InputFile  string          `json:"input_file"`
	ParamsJSON json.RawMessage `json:"params_json,omitempty"`
	StatsJSON  json.RawMessage `json:"stats_json,omitempty"`
	CreatedAt  int64           `json:"created_at"`
}

// NewRun builds a Run with params and stats encoded as JSON.
func NewRun(inputFile string, params, stats any) (*Run, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal run params: %w", err)
	}
	s, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("marshal run stats: %w", err)
	}
	return &Run{InputFile: inputFile, ParamsJSON: p, StatsJSON: s}, nil
}

// RunStore provides persistence for stitching runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// SaveRun stores the run together with its connections and samples in one
// transaction. If RunID is empty, a UUID is generated.
func (s *RunStore) SaveRun(run *Run, conns []models.Connection, samples []models.Sample) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin run transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO stitch_runs (run_id, input_file, params_json, stats_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.InputFile, nullableJSON(run.ParamsJSON), nullableJSON(run.StatsJSON), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := insertConnections(tx, run.RunID, conns); err != nil {
		return err
	}
	if err := insertSamples(tx, run.RunID, samples); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func insertConnections(tx *sql.Tx, runID string, conns []models.Connection) error {
	stmt, err := tx.Prepare(`
		INSERT INTO stitch_connections
			(run_id, seq, source_id, target_id, resolved_id, gap, score, interpolated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare connection insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range conns {
		if _, err := stmt.Exec(runID, i, c.Source, c.Target, c.Resolved, c.Gap, c.Score, c.Interpolated); err != nil {
			return fmt.Errorf("insert connection %d->%d: %w", c.Source, c.Target, err)
		}
	}
	return nil
}

func insertSamples(tx *sql.Tx, runID string, samples []models.Sample) error {
	stmt, err := tx.Prepare(`
		INSERT INTO stitch_samples
			(run_id, seq, trajectory_id, x, y, z, vx, vy, vz, ax, ay, az, t, interpolated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for i, smp := range samples {
		p, v, a := smp.Position, smp.Velocity, smp.Acceleration
		_, err := stmt.Exec(runID, i, smp.TrajectoryID,
			p.X, p.Y, p.Z, v.X, v.Y, v.Z, a.X, a.Y, a.Z,
			smp.Time, smp.Interpolated)
		if err != nil {
			return fmt.Errorf("insert sample %d: %w", i, err)
		}
	}
	return nil
}

// GetRun returns a single run by ID.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, input_file, params_json, stats_json, created_at
		FROM stitch_runs
		WHERE run_id = ?`, runID)

	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	return r, nil
}

// ListRuns returns every run, newest first.
func (s *RunStore) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query(`
		SELECT run_id, input_file, params_json, stats_json, created_at
		FROM stitch_runs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListConnections returns the connections of a run in the order they were applied.
func (s *RunStore) ListConnections(runID string) ([]models.Connection, error) {
	rows, err := s.db.Query(`
		SELECT source_id, target_id, resolved_id, gap, score, interpolated
		FROM stitch_connections
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	var conns []models.Connection
	for rows.Next() {
		var c models.Connection
		if err := rows.Scan(&c.Source, &c.Target, &c.Resolved, &c.Gap, &c.Score, &c.Interpolated); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// LoadSamples returns the samples stored for a run in their original order.
func (s *RunStore) LoadSamples(runID string) ([]models.Sample, error) {
	if _, err := s.GetRun(runID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT trajectory_id, x, y, z, vx, vy, vz, ax, ay, az, t, interpolated
		FROM stitch_samples
		WHERE run_id = ?
		ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []models.Sample
	for rows.Next() {
		var (
			smp     models.Sample
			p, v, a r3.Vec
		)
		err := rows.Scan(&smp.TrajectoryID,
			&p.X, &p.Y, &p.Z, &v.X, &v.Y, &v.Z, &a.X, &a.Y, &a.Z,
			&smp.Time, &smp.Interpolated)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.Position, smp.Velocity, smp.Acceleration = p, v, a
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// DeleteRun removes a run and, through the foreign keys, its connections and samples.
func (s *RunStore) DeleteRun(runID string) error {
	result, err := s.db.Exec(`DELETE FROM stitch_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r             Run
		params, stats sql.NullString
	)
	if err := row.Scan(&r.RunID, &r.InputFile, &params, &stats, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if params.Valid {
		r.ParamsJSON = json.RawMessage(params.String)
	}
	if stats.Valid {
		r.StatsJSON = json.RawMessage(stats.String)
	}
	return &r, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

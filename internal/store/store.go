// Package store persists batch runs in sqlite: the configuration each run
// was started with, the defined relationship results, and the audit trail
// of excluded (missing) units.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/SydneyBioX/kontext/internal/batch"
)

// Store wraps the result database.
type Store struct {
	*sql.DB
}

// Open opens (or creates) the result database at path and brings the
// schema up to date. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenNoMigrate opens the database without touching the schema. The
// migrate CLI uses it so down-migrations and version queries see the
// schema as it is.
func OpenNoMigrate(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db}, nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RunRecord describes one batch run.
type RunRecord struct {
	RunID        string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ConfigJSON   string
	TaskCount    int
	DefinedCount int
}

// InsertRun records a run when it starts.
func (s *Store) InsertRun(rec RunRecord) error {
	_, err := s.Exec(
		`INSERT INTO runs (run_id, started_at, config_json, task_count) VALUES (?, ?, ?, ?)`,
		rec.RunID,
		rec.StartedAt.UTC().Format(time.RFC3339),
		rec.ConfigJSON,
		rec.TaskCount,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", rec.RunID, err)
	}
	return nil
}

// CompleteRun stamps a run as finished with its defined-row count.
func (s *Store) CompleteRun(runID string, completedAt time.Time, definedCount int) error {
	res, err := s.Exec(
		`UPDATE runs SET completed_at = ?, defined_count = ? WHERE run_id = ?`,
		completedAt.UTC().Format(time.RFC3339),
		definedCount,
		runID,
	)
	if err != nil {
		return fmt.Errorf("completing run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("completing run %s: no such run", runID)
	}
	return nil
}

// curvePayload is the JSON shape stored for per-radius curves.
type curvePayload struct {
	Radii []float64 `json:"radii"`
	L     []float64 `json:"l"`
}

// SaveTable writes a table's rows under the given run: defined rows into
// relationship_results, missing rows into the exclusions audit table.
func (s *Store) SaveTable(runID string, table *batch.Table) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() // no-op once committed

	insResult, err := tx.Prepare(`
		INSERT INTO relationship_results
			(run_id, image_id, from_type, to_type, parent, l_value, context_value, curve_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insResult.Close()

	insExcl, err := tx.Prepare(`
		INSERT INTO exclusions (run_id, image_id, from_type, to_type, parent, reason)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insExcl.Close()

	for _, row := range table.Rows {
		parent := sql.NullString{String: row.Parent, Valid: row.Parent != ""}
		if row.Missing || row.ContextMissing {
			if _, err := insExcl.Exec(runID, row.ImageID, row.From, row.To, parent, row.Reason); err != nil {
				return fmt.Errorf("inserting exclusion for %s %s→%s: %w", row.ImageID, row.From, row.To, err)
			}
			if row.Missing {
				continue
			}
			// Only the context column is missing; the raw value is still a
			// result row, stored with a NULL context.
		}

		contextValue := sql.NullFloat64{Float64: row.Context, Valid: row.Parent != "" && !row.ContextMissing}
		var curveJSON sql.NullString
		if len(row.LCurve) > 0 {
			b, err := json.Marshal(curvePayload{Radii: row.Radii, L: row.LCurve})
			if err != nil {
				return fmt.Errorf("encoding curve for %s %s→%s: %w", row.ImageID, row.From, row.To, err)
			}
			curveJSON = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := insResult.Exec(runID, row.ImageID, row.From, row.To, parent, row.L, contextValue, curveJSON); err != nil {
			return fmt.Errorf("inserting result for %s %s→%s: %w", row.ImageID, row.From, row.To, err)
		}
	}
	return tx.Commit()
}

// Results loads the defined rows saved under a run, in insertion order.
func (s *Store) Results(runID string) ([]batch.Row, error) {
	rows, err := s.Query(`
		SELECT image_id, from_type, to_type, parent, l_value, context_value, curve_json
		FROM relationship_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []batch.Row
	for rows.Next() {
		var r batch.Row
		var parent, curveJSON sql.NullString
		var contextValue sql.NullFloat64
		if err := rows.Scan(&r.ImageID, &r.From, &r.To, &parent, &r.L, &contextValue, &curveJSON); err != nil {
			return nil, err
		}
		r.Parent = parent.String
		if contextValue.Valid {
			r.Context = contextValue.Float64
		} else if parent.Valid {
			r.ContextMissing = true
		}
		if curveJSON.Valid {
			var c curvePayload
			if err := json.Unmarshal([]byte(curveJSON.String), &c); err != nil {
				return nil, fmt.Errorf("decoding curve for %s %s→%s: %w", r.ImageID, r.From, r.To, err)
			}
			r.Radii = c.Radii
			r.LCurve = c.L
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Exclusion is one audited missing unit.
type Exclusion struct {
	ImageID string
	From    string
	To      string
	Parent  string
	Reason  string
}

// Exclusions loads the audit records saved under a run.
func (s *Store) Exclusions(runID string) ([]Exclusion, error) {
	rows, err := s.Query(`
		SELECT image_id, from_type, to_type, parent, reason
		FROM exclusions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Exclusion
	for rows.Next() {
		var e Exclusion
		var parent sql.NullString
		if err := rows.Scan(&e.ImageID, &e.From, &e.To, &parent, &e.Reason); err != nil {
			return nil, err
		}
		e.Parent = parent.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Run loads a run record.
func (s *Store) Run(runID string) (RunRecord, error) {
	var rec RunRecord
	var started string
	var completed, cfg sql.NullString
	err := s.QueryRow(`
		SELECT run_id, started_at, completed_at, config_json, task_count, defined_count
		FROM runs WHERE run_id = ?`, runID).
		Scan(&rec.RunID, &started, &completed, &cfg, &rec.TaskCount, &rec.DefinedCount)
	if err != nil {
		return RunRecord{}, err
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return RunRecord{}, fmt.Errorf("parsing started_at for run %s: %w", runID, err)
	}
	if completed.Valid {
		ts, err := time.Parse(time.RFC3339, completed.String)
		if err != nil {
			return RunRecord{}, fmt.Errorf("parsing completed_at for run %s: %w", runID, err)
		}
		rec.CompletedAt = &ts
	}
	rec.ConfigJSON = cfg.String
	return rec, nil
}

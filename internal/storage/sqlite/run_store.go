package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/static-calibration/internal/timeutil"
)

// ErrNotFound is returned when a run id has no row.
var ErrNotFound = errors.New("not found")

// Run is one persisted calibration result.
type Run struct {
	RunID     string `json:"run_id"`
	CreatedAt int64  `json:"created_at"`

	ObjectsFile   string `json:"objects_file,omitempty"`
	RoadMarksFile string `json:"road_marks_file,omitempty"`
	ImageFile     string `json:"image_file,omitempty"`
	MappingFile   string `json:"mapping_file,omitempty"`

	Translation    [3]float64      `json:"translation"`
	Rotation       [3]float64      `json:"rotation_deg"`
	IntrinsicsJSON json.RawMessage `json:"intrinsics"`

	InitialError   float64 `json:"initial_error"`
	FinalError     float64 `json:"final_error"`
	InitialCost    float64 `json:"initial_cost"`
	FinalCost      float64 `json:"final_cost"`
	Iterations     int     `json:"iterations"`
	SolverStatus   string  `json:"solver_status"`
	UsedFallback   bool    `json:"used_fallback"`
	CandidateCount int     `json:"candidate_count"`

	ExtensionJSON json.RawMessage `json:"extension,omitempty"`
	WeightsJSON   json.RawMessage `json:"weights,omitempty"`
	ConfigJSON    json.RawMessage `json:"config,omitempty"`
}

// RunStore persists calibration runs.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// NewRunStore creates a RunStore stamping runs with the wall clock.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db, clock: timeutil.RealClock{}}
}

// SetClock replaces the clock used for CreatedAt.
func (s *RunStore) SetClock(c timeutil.Clock) {
	s.clock = c
}

// Insert persists run. An empty RunID is filled with a new UUID and a zero
// CreatedAt with the current time.
func (s *RunStore) Insert(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}
	intrinsics := string(run.IntrinsicsJSON)
	if intrinsics == "" {
		intrinsics = "{}"
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO calibration_runs (
				run_id, created_at,
				objects_file, road_marks_file, image_file, mapping_file,
				translation_x, translation_y, translation_z,
				rotation_x, rotation_y, rotation_z, intrinsics_json,
				initial_error, final_error, initial_cost, final_cost,
				iterations, solver_status, used_fallback, candidate_count,
				extension_json, weights_json, config_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.CreatedAt,
			run.ObjectsFile, run.RoadMarksFile, run.ImageFile, run.MappingFile,
			run.Translation[0], run.Translation[1], run.Translation[2],
			run.Rotation[0], run.Rotation[1], run.Rotation[2], intrinsics,
			run.InitialError, run.FinalError, run.InitialCost, run.FinalCost,
			run.Iterations, run.SolverStatus, run.UsedFallback, run.CandidateCount,
			nullableJSON(run.ExtensionJSON), nullableJSON(run.WeightsJSON), nullableJSON(run.ConfigJSON),
		)
		return err
	})
}

const runColumns = `
		run_id, created_at,
		objects_file, road_marks_file, image_file, mapping_file,
		translation_x, translation_y, translation_z,
		rotation_x, rotation_y, rotation_z, intrinsics_json,
		initial_error, final_error, initial_cost, final_cost,
		iterations, solver_status, used_fallback, candidate_count,
		extension_json, weights_json, config_json`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var intrinsics string
	var initialCost, finalCost sql.NullFloat64
	var iterations sql.NullInt64
	var status, extension, weights, cfg sql.NullString
	err := row.Scan(
		&r.RunID, &r.CreatedAt,
		&r.ObjectsFile, &r.RoadMarksFile, &r.ImageFile, &r.MappingFile,
		&r.Translation[0], &r.Translation[1], &r.Translation[2],
		&r.Rotation[0], &r.Rotation[1], &r.Rotation[2], &intrinsics,
		&r.InitialError, &r.FinalError, &initialCost, &finalCost,
		&iterations, &status, &r.UsedFallback, &r.CandidateCount,
		&extension, &weights, &cfg,
	)
	if err != nil {
		return nil, err
	}
	r.IntrinsicsJSON = json.RawMessage(intrinsics)
	r.InitialCost = initialCost.Float64
	r.FinalCost = finalCost.Float64
	r.Iterations = int(iterations.Int64)
	r.SolverStatus = status.String
	if extension.Valid {
		r.ExtensionJSON = json.RawMessage(extension.String)
	}
	if weights.Valid {
		r.WeightsJSON = json.RawMessage(weights.String)
	}
	if cfg.Valid {
		r.ConfigJSON = json.RawMessage(cfg.String)
	}
	return &r, nil
}

// Get returns a single run by id.
func (s *RunStore) Get(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM calibration_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}

// List returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (s *RunStore) List(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM calibration_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Delete removes a run and, through the foreign key, its candidates.
func (s *RunStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM calibration_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

func nullableJSON(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

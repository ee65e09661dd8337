package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Candidate is one scored mapping set of a run. Rank 0 is the best.
type Candidate struct {
	RunID   string            `json:"run_id"`
	Rank    int               `json:"rank"`
	Mapping map[string]string `json:"mapping"`
	Error   float64           `json:"error"`
}

// CandidateStore persists the scored candidates of a run.
type CandidateStore struct {
	db *sql.DB
}

// NewCandidateStore creates a CandidateStore.
func NewCandidateStore(db *sql.DB) *CandidateStore {
	return &CandidateStore{db: db}
}

// InsertAll stores candidates for runID in one transaction, ranked in the
// order given.
func (s *CandidateStore) InsertAll(runID string, candidates []Candidate) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`INSERT INTO calibration_candidates (run_id, rank, mapping_json, error) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for i, c := range candidates {
			mapping, err := json.Marshal(c.Mapping)
			if err != nil {
				return fmt.Errorf("marshal candidate %d: %w", i, err)
			}
			if _, err := stmt.Exec(runID, i, string(mapping), c.Error); err != nil {
				return fmt.Errorf("insert candidate %d: %w", i, err)
			}
		}
		return tx.Commit()
	})
}

// ListByRun returns the candidates of runID, best first.
func (s *CandidateStore) ListByRun(runID string) ([]Candidate, error) {
	rows, err := s.db.Query(`
		SELECT run_id, rank, mapping_json, error
		FROM calibration_candidates
		WHERE run_id = ?
		ORDER BY rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var mapping string
		if err := rows.Scan(&c.RunID, &c.Rank, &mapping, &c.Error); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if err := json.Unmarshal([]byte(mapping), &c.Mapping); err != nil {
			return nil, fmt.Errorf("decode candidate %d: %w", c.Rank, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/static-calibration/internal/calibration/estimation"
	"github.com/banshee-data/static-calibration/internal/calibration/loader"
	"github.com/banshee-data/static-calibration/internal/config"
	"github.com/banshee-data/static-calibration/internal/storage/sqlite"
)

// newRun flattens a calibration into a persisted run record.
func newRun(paths loader.Paths, cfg *config.CalibrationConfig, cal *estimation.Calibration) (*sqlite.Run, error) {
	res := cal.Result
	intrinsics, err := json.Marshal(res.Intrinsics)
	if err != nil {
		return nil, fmt.Errorf("marshal intrinsics: %w", err)
	}
	extension, err := json.Marshal(cal.Extension)
	if err != nil {
		return nil, fmt.Errorf("marshal extension: %w", err)
	}
	weights, err := json.Marshal(res.Weights)
	if err != nil {
		return nil, fmt.Errorf("marshal weights: %w", err)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	t, r := res.Extrinsics.Translation, res.Extrinsics.Rotation
	return &sqlite.Run{
		ObjectsFile:    paths.Objects,
		RoadMarksFile:  paths.RoadMarks,
		ImageFile:      paths.Image,
		MappingFile:    paths.Mapping,
		Translation:    [3]float64{t.X, t.Y, t.Z},
		Rotation:       [3]float64{r.X, r.Y, r.Z},
		IntrinsicsJSON: intrinsics,
		InitialError:   res.InitialError,
		FinalError:     res.Error,
		InitialCost:    res.Summary.InitialCost,
		FinalCost:      res.Summary.FinalCost,
		Iterations:     res.Summary.Iterations,
		SolverStatus:   res.Summary.Status,
		UsedFallback:   cal.UsedFallback,
		CandidateCount: cal.Candidates,
		ExtensionJSON:  extension,
		WeightsJSON:    weights,
		ConfigJSON:     cfgJSON,
	}, nil
}

// saveRun records cal and its scored candidates, returning the run id.
func saveRun(db *sqlite.DB, paths loader.Paths, cfg *config.CalibrationConfig, cal *estimation.Calibration) (string, error) {
	run, err := newRun(paths, cfg, cal)
	if err != nil {
		return "", err
	}
	if err := sqlite.NewRunStore(db.DB).Insert(run); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	candidates := make([]sqlite.Candidate, len(cal.Scores))
	for i, s := range cal.Scores {
		candidates[i] = sqlite.Candidate{Mapping: s.Mapping, Error: s.Error}
	}
	if err := sqlite.NewCandidateStore(db.DB).InsertAll(run.RunID, candidates); err != nil {
		return "", fmt.Errorf("insert candidates: %w", err)
	}
	return run.RunID, nil
}

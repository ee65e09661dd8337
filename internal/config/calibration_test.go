package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmptyConfig_Defaults(t *testing.T) {
	cfg := EmptyCalibrationConfig()

	if cfg.GetMaxDistance() != 50 {
		t.Errorf("GetMaxDistance() = %f, want 50", cfg.GetMaxDistance())
	}
	if cfg.GetMaxElementsInDistance() != 3 {
		t.Errorf("GetMaxElementsInDistance() = %d, want 3", cfg.GetMaxElementsInDistance())
	}
	if cfg.GetMaxElementsPerMapping() != 4 {
		t.Errorf("GetMaxElementsPerMapping() = %d, want 4", cfg.GetMaxElementsPerMapping())
	}
	if cfg.GetMaxDepth() != 1000 {
		t.Errorf("GetMaxDepth() = %f, want 1000", cfg.GetMaxDepth())
	}
	if cfg.GetMaxSubsets() != 100000 {
		t.Errorf("GetMaxSubsets() = %d, want 100000", cfg.GetMaxSubsets())
	}
	if cfg.GetCorrespondenceLossUpperBound() != 1000 {
		t.Errorf("GetCorrespondenceLossUpperBound() = %f, want 1000", cfg.GetCorrespondenceLossUpperBound())
	}
	if cfg.GetWeightPenalty() != 100 {
		t.Errorf("GetWeightPenalty() = %f, want 100", cfg.GetWeightPenalty())
	}
	if cfg.GetSolverMaxIterations() != 500 {
		t.Errorf("GetSolverMaxIterations() = %d, want 500", cfg.GetSolverMaxIterations())
	}
	if cfg.GetSolverFunctionEvaluations() != 20000 {
		t.Errorf("GetSolverFunctionEvaluations() = %d, want 20000", cfg.GetSolverFunctionEvaluations())
	}
	if cfg.GetSolverMethod() != "lbfgs" {
		t.Errorf("GetSolverMethod() = %q, want lbfgs", cfg.GetSolverMethod())
	}
	if !cfg.GetSort() || !cfg.GetKeepOnlyLongest() || cfg.GetShuffle() || cfg.GetOptimizeIntrinsics() {
		t.Error("unexpected default flags")
	}
	if cfg.GetPpx() != 960 || cfg.GetPpy() != 600 {
		t.Errorf("principal point = (%f, %f), want image centre", cfg.GetPpx(), cfg.GetPpy())
	}
	if cfg.GetInitialTranslation() != [3]float64{} {
		t.Errorf("GetInitialTranslation() = %v, want origin", cfg.GetInitialTranslation())
	}
}

func TestPrincipalPointFollowsImageSize(t *testing.T) {
	cfg := &CalibrationConfig{ImageWidth: ptrInt(640), ImageHeight: ptrInt(480)}
	if cfg.GetPpx() != 320 || cfg.GetPpy() != 240 {
		t.Errorf("principal point = (%f, %f), want (320, 240)", cfg.GetPpx(), cfg.GetPpy())
	}
	cfg.Ppx = ptrFloat64(300)
	if cfg.GetPpx() != 300 {
		t.Errorf("GetPpx() = %f, want explicit 300", cfg.GetPpx())
	}
}

func TestLoadCalibrationConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "calib.json")

	// Comments and trailing commas are accepted.
	testJSON := `{
  // tighter search
  "max_distance": 25.5,
  "keep_only_longest": false,
  "initial_rotation": [90, 0, 10],
  "solver_method": "nelder-mead",
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadCalibrationConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.GetMaxDistance() != 25.5 {
		t.Errorf("GetMaxDistance() = %f, want 25.5", cfg.GetMaxDistance())
	}
	if cfg.GetKeepOnlyLongest() {
		t.Error("expected keep_only_longest false")
	}
	if cfg.GetInitialRotation() != [3]float64{90, 0, 10} {
		t.Errorf("GetInitialRotation() = %v", cfg.GetInitialRotation())
	}
	if cfg.GetSolverMethod() != "nelder-mead" {
		t.Errorf("GetSolverMethod() = %q", cfg.GetSolverMethod())
	}
	// Omitted fields keep their defaults.
	if cfg.GetMaxElementsPerMapping() != 4 {
		t.Errorf("GetMaxElementsPerMapping() = %d, want 4", cfg.GetMaxElementsPerMapping())
	}
}

func TestLoadCalibrationConfig_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(tmpDir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		return path
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("calib.yaml", "{}"), ".json extension"},
		{"missing", filepath.Join(tmpDir, "nope.json"), "failed to stat"},
		{"malformed", write("bad.json", "{"), "failed to parse"},
		{"unknown type", write("type.json", `{"max_distance": "far"}`), "failed to parse"},
		{"negative distance", write("neg.json", `{"max_distance": -1}`), "max_distance"},
		{"zero focal", write("fx.json", `{"fx": 0}`), "fx must be positive"},
		{"bad method", write("m.json", `{"solver_method": "newton"}`), "solver_method"},
		{"bad bound", write("b.json", `{"correspondence_loss_upper_bound": 0}`), "correspondence_loss_upper_bound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCalibrationConfig(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCalibrationConfig_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, 1024*1024+1)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(path, big, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadCalibrationConfig(path); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.GetInitialTranslation() != [3]float64{0, -10, 5} {
		t.Errorf("initial translation = %v", cfg.GetInitialTranslation())
	}
	if cfg.GetInitialRotation() != [3]float64{90, 0, 0} {
		t.Errorf("initial rotation = %v", cfg.GetInitialRotation())
	}
	// The defaults file must agree with the built-in defaults.
	empty := EmptyCalibrationConfig()
	if cfg.GetMaxDistance() != empty.GetMaxDistance() ||
		cfg.GetMaxElementsInDistance() != empty.GetMaxElementsInDistance() ||
		cfg.GetMaxElementsPerMapping() != empty.GetMaxElementsPerMapping() ||
		cfg.GetMaxSubsets() != empty.GetMaxSubsets() ||
		cfg.GetCorrespondenceLossUpperBound() != empty.GetCorrespondenceLossUpperBound() {
		t.Error("defaults file drifted from built-in defaults")
	}
}

func TestValidate_Pointers(t *testing.T) {
	cfg := &CalibrationConfig{Shuffle: ptrBool(true), MaxSubsets: ptrInt(-1)}
	if err := cfg.Validate(); err == nil {
		t.Error("expected max_subsets error")
	}
}

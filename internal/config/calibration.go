package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// DefaultConfigPath is the path to the canonical calibration defaults file.
const DefaultConfigPath = "config/calibration.defaults.json"

// CalibrationConfig holds the tunables of a calibration run. Every field is
// optional; the Get* methods supply the default for fields left unset.
type CalibrationConfig struct {
	// Initial camera guess
	InitialTranslation *[3]float64 `json:"initial_translation,omitempty"`
	InitialRotation    *[3]float64 `json:"initial_rotation,omitempty"` // degrees, applied z*y*x

	// Intrinsics
	Fx          *float64 `json:"fx,omitempty"`
	Fy          *float64 `json:"fy,omitempty"`
	Ppx         *float64 `json:"ppx,omitempty"`
	Ppy         *float64 `json:"ppy,omitempty"`
	K1          *float64 `json:"k1,omitempty"`
	K2          *float64 `json:"k2,omitempty"`
	ImageWidth  *int     `json:"image_width,omitempty"`
	ImageHeight *int     `json:"image_height,omitempty"`

	// Candidate search
	MaxDistance           *float64 `json:"max_distance,omitempty"` // pixels
	MaxElementsInDistance *int     `json:"max_elements_in_distance,omitempty"`
	MaxElementsPerMapping *int     `json:"max_elements_per_mapping,omitempty"`
	Sort                  *bool    `json:"sort,omitempty"`
	KeepOnlyLongest       *bool    `json:"keep_only_longest,omitempty"`
	Shuffle               *bool    `json:"shuffle,omitempty"`
	ShuffleSeed           *int64   `json:"shuffle_seed,omitempty"`
	MaxDepth              *float64 `json:"max_depth,omitempty"`
	MaxSubsets            *int     `json:"max_subsets,omitempty"`

	// Estimation
	CorrespondenceLossUpperBound *float64 `json:"correspondence_loss_upper_bound,omitempty"`
	WeightPenalty                *float64 `json:"weight_penalty,omitempty"`
	OptimizeIntrinsics           *bool    `json:"optimize_intrinsics,omitempty"`
	SolverMethod                 *string  `json:"solver_method,omitempty"` // "lbfgs" or "nelder-mead"
	SolverMaxIterations          *int     `json:"solver_max_iterations,omitempty"`
	SolverFunctionEvaluations    *int     `json:"solver_function_evaluations,omitempty"`
	SolverFunctionTolerance      *float64 `json:"solver_function_tolerance,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyCalibrationConfig returns a config with every field unset.
func EmptyCalibrationConfig() *CalibrationConfig {
	return &CalibrationConfig{}
}

// ParseCalibrationConfig decodes a JSON document. Comments and trailing
// commas are accepted.
func ParseCalibrationConfig(data []byte) (*CalibrationConfig, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	cfg := EmptyCalibrationConfig()
	if err := json.Unmarshal(std, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadCalibrationConfig loads a CalibrationConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadCalibrationConfig(path string) (*CalibrationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseCalibrationConfig(data)
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upwards from the
// working directory. Panics if the file cannot be loaded; intended for test
// setup.
func MustLoadDefaultConfig() *CalibrationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/calibration/estimation/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadCalibrationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *CalibrationConfig) Validate() error {
	for name, v := range map[string]*float64{"fx": c.Fx, "fy": c.Fy} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	for name, v := range map[string]*int{"image_width": c.ImageWidth, "image_height": c.ImageHeight} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if c.MaxDistance != nil && *c.MaxDistance < 0 {
		return fmt.Errorf("max_distance must be non-negative, got %f", *c.MaxDistance)
	}
	if c.MaxDepth != nil && *c.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %f", *c.MaxDepth)
	}
	if c.MaxSubsets != nil && *c.MaxSubsets < 0 {
		return fmt.Errorf("max_subsets must be non-negative, got %d", *c.MaxSubsets)
	}
	if c.CorrespondenceLossUpperBound != nil && *c.CorrespondenceLossUpperBound <= 0 {
		return fmt.Errorf("correspondence_loss_upper_bound must be positive, got %f", *c.CorrespondenceLossUpperBound)
	}
	if c.WeightPenalty != nil && *c.WeightPenalty < 0 {
		return fmt.Errorf("weight_penalty must be non-negative, got %f", *c.WeightPenalty)
	}
	if c.SolverMethod != nil {
		switch *c.SolverMethod {
		case "", "lbfgs", "nelder-mead":
		default:
			return fmt.Errorf("solver_method must be \"lbfgs\" or \"nelder-mead\", got %q", *c.SolverMethod)
		}
	}
	if c.SolverMaxIterations != nil && *c.SolverMaxIterations < 0 {
		return fmt.Errorf("solver_max_iterations must be non-negative, got %d", *c.SolverMaxIterations)
	}
	return nil
}

// GetInitialTranslation returns the initial camera centre or the origin.
func (c *CalibrationConfig) GetInitialTranslation() [3]float64 {
	if c.InitialTranslation == nil {
		return [3]float64{}
	}
	return *c.InitialTranslation
}

// GetInitialRotation returns the initial Euler angles or zero.
func (c *CalibrationConfig) GetInitialRotation() [3]float64 {
	if c.InitialRotation == nil {
		return [3]float64{}
	}
	return *c.InitialRotation
}

func (c *CalibrationConfig) GetFx() float64 { return float64Or(c.Fx, 1200) }

func (c *CalibrationConfig) GetFy() float64 { return float64Or(c.Fy, 1200) }

// GetPpx defaults to the horizontal image centre.
func (c *CalibrationConfig) GetPpx() float64 {
	return float64Or(c.Ppx, float64(c.GetImageWidth())/2)
}

// GetPpy defaults to the vertical image centre.
func (c *CalibrationConfig) GetPpy() float64 {
	return float64Or(c.Ppy, float64(c.GetImageHeight())/2)
}

func (c *CalibrationConfig) GetK1() float64 { return float64Or(c.K1, 0) }

func (c *CalibrationConfig) GetK2() float64 { return float64Or(c.K2, 0) }

func (c *CalibrationConfig) GetImageWidth() int { return intOr(c.ImageWidth, 1920) }

func (c *CalibrationConfig) GetImageHeight() int { return intOr(c.ImageHeight, 1200) }

func (c *CalibrationConfig) GetMaxDistance() float64 { return float64Or(c.MaxDistance, 50) }

func (c *CalibrationConfig) GetMaxElementsInDistance() int {
	return intOr(c.MaxElementsInDistance, 3)
}

func (c *CalibrationConfig) GetMaxElementsPerMapping() int {
	return intOr(c.MaxElementsPerMapping, 4)
}

func (c *CalibrationConfig) GetSort() bool { return boolOr(c.Sort, true) }

func (c *CalibrationConfig) GetKeepOnlyLongest() bool { return boolOr(c.KeepOnlyLongest, true) }

func (c *CalibrationConfig) GetShuffle() bool { return boolOr(c.Shuffle, false) }

func (c *CalibrationConfig) GetShuffleSeed() int64 {
	if c.ShuffleSeed == nil {
		return 1
	}
	return *c.ShuffleSeed
}

func (c *CalibrationConfig) GetMaxDepth() float64 { return float64Or(c.MaxDepth, 1000) }

func (c *CalibrationConfig) GetMaxSubsets() int { return intOr(c.MaxSubsets, 100000) }

// GetCorrespondenceLossUpperBound returns the shared base bound; pose
// estimation scales it for correspondence residuals.
func (c *CalibrationConfig) GetCorrespondenceLossUpperBound() float64 {
	return float64Or(c.CorrespondenceLossUpperBound, 1000)
}

func (c *CalibrationConfig) GetWeightPenalty() float64 { return float64Or(c.WeightPenalty, 100) }

func (c *CalibrationConfig) GetOptimizeIntrinsics() bool { return boolOr(c.OptimizeIntrinsics, false) }

func (c *CalibrationConfig) GetSolverMethod() string {
	if c.SolverMethod == nil || *c.SolverMethod == "" {
		return "lbfgs"
	}
	return *c.SolverMethod
}

func (c *CalibrationConfig) GetSolverMaxIterations() int {
	return intOr(c.SolverMaxIterations, 500)
}

func (c *CalibrationConfig) GetSolverFunctionEvaluations() int {
	return intOr(c.SolverFunctionEvaluations, 20000)
}

func (c *CalibrationConfig) GetSolverFunctionTolerance() float64 {
	return float64Or(c.SolverFunctionTolerance, 1e-9)
}

func float64Or(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

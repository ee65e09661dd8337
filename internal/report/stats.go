// Package report renders calibration diagnostics: reprojection statistics,
// PNG charts of candidate scores and solver cost, and an HTML scatter of
// projected against detected pixels.
package report

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/static-calibration/internal/calibration/dataset"
)

// Stats summarises the pixel distances of the mapping entries that project
// in front of the camera.
type Stats struct {
	Entries      int     `json:"entries"`
	BehindCamera int     `json:"behind_camera"`
	Mean         float64 `json:"mean_px"`
	StdDev       float64 `json:"stddev_px"`
	RMSE         float64 `json:"rmse_px"`
	Max          float64 `json:"max_px"`
}

// Summarize computes Stats over entries.
func Summarize(entries []dataset.EntryError) Stats {
	s := Stats{Entries: len(entries)}
	d := make([]float64, 0, len(entries))
	for _, e := range entries {
		if e.BehindCamera {
			s.BehindCamera++
			continue
		}
		d = append(d, e.Distance)
	}
	if len(d) == 0 {
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(d, nil)
	if len(d) == 1 {
		s.StdDev = 0
	}
	s.RMSE = floats.Norm(d, 2) / math.Sqrt(float64(len(d)))
	s.Max = floats.Max(d)
	return s
}

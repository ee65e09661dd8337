package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/static-calibration/internal/calibration/dataset"
	"github.com/banshee-data/static-calibration/internal/calibration/estimation"
	"github.com/banshee-data/static-calibration/internal/monitoring"
)

// ErrNoData is returned when a chart has nothing to draw.
var ErrNoData = errors.New("no data to plot")

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 5 * vg.Inch
)

// WriteCandidateScores saves a PNG of candidate errors by rank.
func WriteCandidateScores(path string, scores []dataset.ScoredMapping) error {
	if len(scores) == 0 {
		return ErrNoData
	}
	pts := make(plotter.XYs, len(scores))
	for i, s := range scores {
		pts[i] = plotter.XY{X: float64(i), Y: s.Error}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Candidate mappings (%d)", len(scores))
	p.X.Label.Text = "Rank"
	p.Y.Label.Text = "Reprojection error (px)"
	p.Add(plotter.NewGrid())

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	sc.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	sc.GlyphStyle.Radius = vg.Points(3)
	p.Add(sc)

	if err := p.Save(chartWidth, chartHeight, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// WriteCostHistory saves a PNG of the solver cost per major iteration.
func WriteCostHistory(path string, result *estimation.Result) error {
	if result == nil || len(result.Summary.CostHistory) == 0 {
		return ErrNoData
	}
	history := result.Summary.CostHistory
	pts := make(plotter.XYs, 0, len(history)+1)
	pts = append(pts, plotter.XY{X: 0, Y: result.Summary.InitialCost})
	for i, c := range history {
		pts = append(pts, plotter.XY{X: float64(i + 1), Y: c})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Solver cost (%s, %s)", result.Summary.Method, result.Summary.Status)
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Cost"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("line: %w", err)
	}
	line.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(chartWidth, chartHeight, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// WriteReprojection renders an HTML scatter of detected image mids against
// the projected world objects. Entries behind the camera are left out.
func WriteReprojection(w io.Writer, title string, entries []dataset.EntryError) error {
	scatter, err := reprojectionChart(title, entries)
	if err != nil {
		return err
	}
	return scatter.Render(w)
}

func reprojectionChart(title string, entries []dataset.EntryError) (*charts.Scatter, error) {
	expected := make([]opts.ScatterData, 0, len(entries))
	projected := make([]opts.ScatterData, 0, len(entries))
	for _, e := range entries {
		if e.BehindCamera {
			continue
		}
		expected = append(expected, opts.ScatterData{Name: e.ImageID, Value: []interface{}{e.Expected.X, e.Expected.Y}})
		projected = append(projected, opts.ScatterData{Name: e.WorldID, Value: []interface{}{e.Projected.X, e.Projected.Y}})
	}
	if len(expected) == 0 {
		return nil, ErrNoData
	}
	stats := Summarize(entries)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Calibration Reprojection", Width: "1200px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("entries=%d rmse=%.2fpx max=%.2fpx", stats.Entries, stats.RMSE, stats.Max)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "u (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "v (px)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("detected", expected, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	scatter.AddSeries("projected", projected, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter, nil
}

// WriteAll writes every chart for a calibration into dir. Charts without
// data are skipped.
func WriteAll(dir string, cal *estimation.Calibration, entries []dataset.EntryError) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	if cal != nil {
		if err := skipEmpty(WriteCandidateScores(filepath.Join(dir, "candidates.png"), cal.Scores)); err != nil {
			return err
		}
		if err := skipEmpty(WriteCostHistory(filepath.Join(dir, "cost.png"), cal.Result)); err != nil {
			return err
		}
	}

	scatter, err := reprojectionChart("Reprojection", entries)
	switch {
	case errors.Is(err, ErrNoData):
	case err != nil:
		return err
	default:
		f, err := os.Create(filepath.Join(dir, "reprojection.html"))
		if err != nil {
			return err
		}
		if err := scatter.Render(f); err != nil {
			f.Close()
			return fmt.Errorf("render reprojection: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	monitoring.Diagf("report: wrote charts to %s", dir)
	return nil
}

func skipEmpty(err error) error {
	if errors.Is(err, ErrNoData) {
		return nil
	}
	return err
}

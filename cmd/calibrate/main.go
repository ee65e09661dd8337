// Command calibrate estimates a static camera pose from surveyed world
// objects and detected image objects.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/banshee-data/static-calibration/internal/calibration/estimation"
	"github.com/banshee-data/static-calibration/internal/calibration/loader"
	"github.com/banshee-data/static-calibration/internal/config"
	"github.com/banshee-data/static-calibration/internal/monitoring"
	"github.com/banshee-data/static-calibration/internal/report"
	"github.com/banshee-data/static-calibration/internal/storage/sqlite"
	"github.com/banshee-data/static-calibration/internal/version"
)

func main() {
	var paths loader.Paths
	var configPath string
	var dbPath string
	var outDir string
	var optimizeIntrinsics bool
	var evaluateOnly bool
	var verbose bool
	var quiet bool
	var showVersion bool

	flag.StringVar(&paths.Objects, "objects", "", "world objects document (poles)")
	flag.StringVar(&paths.RoadMarks, "road-marks", "", "road marks document")
	flag.StringVar(&paths.Image, "image", "", "detected image objects document")
	flag.StringVar(&paths.Mapping, "mapping", "", "explicit world-to-image mapping (YAML)")
	flag.StringVar(&configPath, "config", "", "calibration config (JSON with comments); built-in defaults when empty")
	flag.StringVar(&dbPath, "db", "", "sqlite database to record the run in")
	flag.StringVar(&outDir, "out", "", "directory for report charts")
	flag.BoolVar(&optimizeIntrinsics, "optimize-intrinsics", false, "also refine focal lengths, principal point and distortion")
	flag.BoolVar(&evaluateOnly, "evaluate-only", false, "only report the error of the initial camera")
	flag.BoolVar(&verbose, "verbose", false, "enable diag and trace logging")
	flag.BoolVar(&quiet, "quiet", false, "disable all logging except fatal errors")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("calibrate", version.String())
		return
	}

	configureLogging(verbose, quiet)

	if paths.Image == "" {
		log.Fatalf("-image must be provided")
	}

	cfg := config.EmptyCalibrationConfig()
	if configPath != "" {
		var err error
		cfg, err = config.LoadCalibrationConfig(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if optimizeIntrinsics {
		cfg.OptimizeIntrinsics = &optimizeIntrinsics
	}

	ds, err := loader.LoadDataSet(paths)
	if err != nil {
		log.Fatalf("load data: %v", err)
	}
	initial, intrinsics := estimation.CameraFromConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if evaluateOnly {
		entries := ds.EvaluateDetailed(initial, intrinsics)
		printJSON(os.Stdout, map[string]interface{}{
			"error": ds.Evaluate(initial, intrinsics),
			"stats": report.Summarize(entries),
		})
		if outDir != "" {
			if err := report.WriteAll(outDir, nil, entries); err != nil {
				log.Fatalf("write report: %v", err)
			}
		}
		return
	}

	cal, err := estimation.Calibrate(ctx, ds, initial, intrinsics, cfg)
	if err != nil {
		log.Fatalf("calibrate: %v", err)
	}
	printJSON(os.Stdout, cal)

	if outDir != "" {
		entries := ds.EvaluateDetailed(cal.Result.Extrinsics, cal.Result.Intrinsics)
		if err := report.WriteAll(outDir, cal, entries); err != nil {
			log.Fatalf("write report: %v", err)
		}
	}

	if dbPath != "" {
		db, err := sqlite.Open(dbPath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		runID, err := saveRun(db, paths, cfg, cal)
		if err != nil {
			log.Fatalf("save run: %v", err)
		}
		monitoring.Opsf("recorded run %s in %s", runID, dbPath)
	}
}

func configureLogging(verbose, quiet bool) {
	switch {
	case quiet:
		monitoring.SetLogWriters(monitoring.LogWriters{})
	case verbose:
		monitoring.SetLogWriters(monitoring.LogWriters{Ops: os.Stderr, Diag: os.Stderr, Trace: os.Stderr})
	default:
		monitoring.SetLogWriters(monitoring.LogWriters{Ops: os.Stderr})
	}
}

func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
	}
}

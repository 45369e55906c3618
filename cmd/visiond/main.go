// Command visiond runs the compliance vision pipeline over a synthetic
// detector set. It exists to exercise the full core end to end without
// cameras or models attached: frames flow through the gate, tracker,
// synchroniser and stabiliser, and optionally into a SQLite archive.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/Tongxz/PEPGMP-sub000/internal/config"
	"github.com/Tongxz/PEPGMP-sub000/internal/db"
	"github.com/Tongxz/PEPGMP-sub000/internal/version"
	"github.com/Tongxz/PEPGMP-sub000/internal/vision"
	storage "github.com/Tongxz/PEPGMP-sub000/internal/vision/storage/sqlite"
)

func main() {
	frames := flag.Int("n", 300, "number of frames to process")
	people := flag.Int("people", 2, "synthetic people per frame")
	sourceID := flag.String("source", "cam0", "source id")
	dbPath := flag.String("db", "", "archive database path (empty = no archive)")
	migrations := flag.String("migrations", "db/migrations", "migrations directory")
	skip := flag.Int("skip", 1, "frame gate skip interval")
	tuningPath := flag.String("config", "", "optional tuning overrides (JSON)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("visiond %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := vision.DefaultPipelineConfig()
	cfg.Gate.SkipInterval = *skip

	if *tuningPath != "" {
		tc, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("tuning config: %v", err)
		}
		cfg, err = tc.Apply(cfg)
		if err != nil {
			log.Fatalf("tuning config: %v", err)
		}
		log.Printf("[visiond] applied tuning overrides from %s", *tuningPath)
	}

	synth := vision.NewSyntheticDetectors(*people)
	pipeline, err := vision.NewPipeline(cfg, synth.Detectors())
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	if *dbPath != "" {
		archiveDB, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("archive db: %v", err)
		}
		defer archiveDB.Close()
		if err := archiveDB.MigrateUp(*migrations); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		pipeline.SetArchiver(storage.NewArchiveStore(archiveDB.DB))
		log.Printf("[visiond] archiving to %s", *dbPath)
	}

	ctx := context.Background()
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	start := time.Now()

	for i := 0; i < *frames; i++ {
		ts := start.Add(time.Duration(i) * 100 * time.Millisecond)
		rec, tracks, err := pipeline.ProcessFrame(ctx, img, *sourceID, vision.SourceLive, ts)
		if err != nil {
			log.Fatalf("frame %d: %v", i, err)
		}
		if rec == nil {
			continue // Gated
		}
		if (i+1)%50 == 0 {
			log.Printf("[visiond] frame %d: %d tracks, stable=%s (%.2f)",
				i+1, len(tracks), rec.StableState, rec.StableConfidence)
		}
	}

	seen, gated, processed, detErrs := pipeline.Stats().Snapshot()
	log.Printf("[visiond] done: seen=%d gated=%d processed=%d detector_errors=%d detect_avg=%s",
		seen, gated, processed, detErrs, pipeline.Stats().AvgDetectLatency())
}

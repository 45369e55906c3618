// Command compliance-report renders offline charts from the vision
// archive: an HTML compliance-rate timeline (go-echarts) and a PNG
// histogram of track dwell times (gonum/plot).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Tongxz/PEPGMP-sub000/internal/db"
	storage "github.com/Tongxz/PEPGMP-sub000/internal/vision/storage/sqlite"
)

func main() {
	dbPath := flag.String("db", "vision.db", "archive database path")
	sourceID := flag.String("source", "cam0", "source id to report on")
	bucket := flag.Duration("bucket", time.Minute, "aggregation bucket width")
	htmlOut := flag.String("html", "compliance.html", "output HTML chart path")
	pngOut := flag.String("png", "dwell.png", "output dwell histogram path")
	flag.Parse()

	archiveDB, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	defer archiveDB.Close()

	store := storage.NewArchiveStore(archiveDB.DB)

	if err := renderComplianceChart(store, *sourceID, *bucket, *htmlOut); err != nil {
		log.Fatalf("compliance chart: %v", err)
	}
	log.Printf("✓ Created: %s", *htmlOut)

	if err := renderDwellHistogram(store, *sourceID, *pngOut); err != nil {
		log.Fatalf("dwell histogram: %v", err)
	}
	log.Printf("✓ Created: %s", *pngOut)
}

// renderComplianceChart writes an HTML line chart of per-bucket
// violation rate for one source.
func renderComplianceChart(store *storage.ArchiveStore, sourceID string, bucket time.Duration, out string) error {
	buckets, err := store.ComplianceByBucket(sourceID, bucket.Microseconds())
	if err != nil {
		return err
	}
	if len(buckets) == 0 {
		return fmt.Errorf("no archived frames for source %q", sourceID)
	}

	xAxis := make([]string, len(buckets))
	rates := make([]opts.LineData, len(buckets))
	for i, b := range buckets {
		xAxis[i] = time.UnixMicro(b.BucketStartMicros).Format("15:04:05")
		rate := 0.0
		if b.Frames > 0 {
			rate = float64(b.ViolationFrames) / float64(b.Frames)
		}
		rates[i] = opts.LineData{Value: rate}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Violation rate — %s", sourceID),
			Subtitle: fmt.Sprintf("bucket width %s", bucket),
		}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	line.SetXAxis(xAxis).AddSeries("violation rate", rates)

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	return line.Render(f)
}

// renderDwellHistogram writes a PNG histogram of archived track ages
// (frames seen before deletion) and logs the dwell percentiles.
func renderDwellHistogram(store *storage.ArchiveStore, sourceID string, out string) error {
	tracks, err := store.GetTracks(sourceID, 0)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return fmt.Errorf("no archived tracks for source %q", sourceID)
	}

	dwell := make(plotter.Values, len(tracks))
	sorted := make([]float64, len(tracks))
	for i, tr := range tracks {
		dwell[i] = float64(tr.Age)
		sorted[i] = float64(tr.Age)
	}
	stat.SortWeighted(sorted, nil)
	p50 := stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p95 := stat.Quantile(0.95, stat.Empirical, sorted, nil)
	log.Printf("[report] %d tracks, dwell p50=%.0f frames p95=%.0f frames", len(tracks), p50, p95)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track dwell — %s", sourceID)
	p.X.Label.Text = "Frames seen"
	p.Y.Label.Text = "Tracks"

	h, err := plotter.NewHist(dwell, 16)
	if err != nil {
		return err
	}
	p.Add(h)

	return p.Save(6*vg.Inch, 4*vg.Inch, out)
}

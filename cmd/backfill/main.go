// Command backfill loads historical daily reservoir records, either through
// the upstream source chain or from a downloaded USBR CSV export.
//
// Usage:
//
//	backfill [-start 1980-06-22] [-end 2024-12-31] [-overwrite] [-skip-existing]
//	backfill -csv lake_powell.csv [-overwrite] [-skip-existing]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/usbr"
	"github.com/couchcryptid/lake-powell-etl/internal/app"
	"github.com/couchcryptid/lake-powell-etl/internal/pipeline"
)

type options struct {
	csvPath string
	start   string
	end     string
	imp     pipeline.ImportOptions
}

func main() {
	var opts options
	flag.StringVar(&opts.csvPath, "csv", "", "import from a USBR CSV export instead of the upstream APIs")
	flag.StringVar(&opts.start, "start", "", "first date to import (YYYY-MM-DD, default HISTORICAL_START)")
	flag.StringVar(&opts.end, "end", "", "last date to import (YYYY-MM-DD, default today)")
	flag.BoolVar(&opts.imp.Overwrite, "overwrite", false, "replace rows that already exist")
	flag.BoolVar(&opts.imp.SkipExisting, "skip-existing", false, "do not request or write dates already stored")
	flag.Parse()

	if err := run(opts); err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	var err error
	if opts.imp.Start, err = parseDate("start", opts.start); err != nil {
		return err
	}
	if opts.imp.End, err = parseDate("end", opts.end); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	cfg := env.Config

	importer := pipeline.NewImporter(env.WaterChain(), env.Engine(), env.Store, env.Logger, env.Metrics, pipeline.ImporterConfig{
		HistoricalStart: cfg.HistoricalStart,
		ChunkDays:       cfg.ChunkDays,
		BatchSize:       cfg.BatchSize,
	})

	var res pipeline.ImportResult
	if opts.csvPath != "" {
		res, err = importCSV(ctx, importer, opts.csvPath, opts.imp)
	} else {
		res, err = importer.ImportHistorical(ctx, opts.imp)
	}
	if err != nil {
		return err
	}
	env.Logger.Info("backfill finished", "result", res)
	return nil
}

func importCSV(ctx context.Context, importer *pipeline.Importer, path string, opts pipeline.ImportOptions) (pipeline.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return pipeline.ImportResult{}, err
	}
	defer f.Close()

	recs, err := usbr.ParseHistoricalCSV(f)
	if err != nil {
		return pipeline.ImportResult{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return importer.ImportRecords(ctx, "csv", recs, opts)
}

func parseDate(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -%s %q: want YYYY-MM-DD", name, s)
	}
	return t, nil
}

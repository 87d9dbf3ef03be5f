// Command analyze rebuilds the elevation-storage capacity curve and the
// per-water-year runoff analysis from the stored history.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/lake-powell-etl/internal/analysis"
	"github.com/couchcryptid/lake-powell-etl/internal/app"
	"github.com/couchcryptid/lake-powell-etl/internal/capacity"
)

func main() {
	skipCapacity := flag.Bool("skip-capacity", false, "do not rebuild the capacity curve")
	skipYears := flag.Bool("skip-water-years", false, "do not analyse water years")
	from := flag.Int("from", 0, "first water year to analyse (0 = earliest)")
	to := flag.Int("to", 0, "last water year to analyse (0 = latest)")
	flag.Parse()

	if err := run(!*skipCapacity, !*skipYears, analysis.Options{FromYear: *from, ToYear: *to}); err != nil {
		slog.Error("analysis failed", "error", err)
		os.Exit(1)
	}
}

func run(doCapacity, doYears bool, opts analysis.Options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	if doCapacity {
		builder := capacity.NewBuilder(env.Store, env.Reservoir, env.Logger, env.Metrics)
		if _, err := builder.Rebuild(ctx); err != nil {
			return err
		}
	}
	if doYears {
		runner := analysis.NewRunner(env.Store, env.Logger, env.Metrics)
		if _, err := runner.AnalyzeAll(ctx, opts); err != nil {
			return err
		}
	}
	return nil
}

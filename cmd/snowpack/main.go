// Command snowpack imports the Upper Colorado basin SWE climatology and the
// SNOTEL station list with its daily history.
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

	"github.com/couchcryptid/lake-powell-etl/internal/app"
	"github.com/couchcryptid/lake-powell-etl/internal/pipeline"
)

type options struct {
	skipBasin  bool
	skipSnotel bool
	overwrite  bool
	start      string
	end        string
	limitSites int
}

func main() {
	var opts options
	flag.BoolVar(&opts.skipBasin, "skip-basin", false, "do not import basin-plot climatology")
	flag.BoolVar(&opts.skipSnotel, "skip-snotel", false, "do not import SNOTEL sites and history")
	flag.BoolVar(&opts.overwrite, "overwrite", false, "replace rows that already exist")
	flag.StringVar(&opts.start, "start", "", "first SNOTEL history date (YYYY-MM-DD, default ten years before -end)")
	flag.StringVar(&opts.end, "end", "", "last SNOTEL history date (YYYY-MM-DD, default today)")
	flag.IntVar(&opts.limitSites, "limit-sites", 0, "import at most this many report sites (0 = all)")
	flag.Parse()

	if err := run(opts); err != nil {
		slog.Error("snowpack import failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	snotel := pipeline.SnotelOptions{Overwrite: opts.overwrite, LimitSites: opts.limitSites}
	for _, d := range []struct {
		name string
		val  string
		dst  *time.Time
	}{
		{"start", opts.start, &snotel.Start},
		{"end", opts.end, &snotel.End},
	} {
		if d.val == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, d.val)
		if err != nil {
			return fmt.Errorf("invalid -%s %q: want YYYY-MM-DD", d.name, d.val)
		}
		*d.dst = t
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	importer := env.SnowpackImporter()

	if !opts.skipBasin {
		if _, err := importer.ImportBasinPlots(ctx, opts.overwrite); err != nil {
			return err
		}
	}
	if !opts.skipSnotel {
		res, err := importer.ImportSnotel(ctx, snotel)
		if err != nil {
			return err
		}
		env.Logger.Info("snotel import finished",
			"sites", res.Sites,
			"resolved", res.Resolved,
			"measurements", res.Measurements,
			"duplicates", res.Duplicates,
		)
	}
	return nil
}

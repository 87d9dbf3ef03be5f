// Command admin runs one-off table maintenance.
//
// Usage:
//
//	admin -seed-ramps
//	admin -fix-bank-storage [-dry-run]
//	admin -clear-water -yes
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/lake-powell-etl/internal/app"
	"github.com/couchcryptid/lake-powell-etl/internal/domain"
)

type options struct {
	seedRamps  bool
	fixBank    bool
	clearWater bool
	dryRun     bool
	yes        bool
}

func main() {
	var opts options
	flag.BoolVar(&opts.seedRamps, "seed-ramps", false, "upsert the default launch ramps")
	flag.BoolVar(&opts.fixBank, "fix-bank-storage", false, "add the bank storage offset to uncorrected content values")
	flag.BoolVar(&opts.clearWater, "clear-water", false, "delete every water measurement")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "with -fix-bank-storage, only count affected rows")
	flag.BoolVar(&opts.yes, "yes", false, "confirm -clear-water")
	flag.Parse()

	if err := run(opts); err != nil {
		slog.Error("admin task failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if !opts.seedRamps && !opts.fixBank && !opts.clearWater {
		flag.Usage()
		return errors.New("no task selected")
	}
	if opts.clearWater && !opts.yes {
		return errors.New("-clear-water deletes all water data; pass -yes to confirm")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	logger, store, res := env.Logger, env.Store, env.Reservoir

	if opts.clearWater {
		n, err := store.ClearWater(ctx)
		if err != nil {
			return err
		}
		logger.Info("water measurements cleared", "deleted", n)
	}

	if opts.seedRamps {
		ramps := domain.DefaultRamps()
		for _, r := range ramps {
			if err := store.UpsertRamp(ctx, r); err != nil {
				return err
			}
		}
		env.Metrics.RecordsWritten.WithLabelValues("ramp").Add(float64(len(ramps)))
		logger.Info("ramps seeded", "count", len(ramps))
	}

	if opts.fixBank {
		n, err := store.CountBankStorageCandidates(ctx, res.BankStorageMinElevation, res.BankStorageMaxContent)
		if err != nil {
			return err
		}
		logger.Info("bank storage rows to correct",
			"rows", n,
			"offset", res.BankStorageOffset,
			"min_elevation", res.BankStorageMinElevation,
			"max_content", res.BankStorageMaxContent,
		)
		if opts.dryRun || n == 0 {
			return nil
		}
		n, err = store.CorrectBankStorage(ctx, res.BankStorageOffset, res.BankStorageMinElevation, res.BankStorageMaxContent)
		if err != nil {
			return err
		}
		logger.Info("bank storage corrected", "rows", n)
	}
	return nil
}

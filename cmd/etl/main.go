// Command etl keeps the reservoir tables current. It fills the gap between
// the newest stored day and today, refreshes today's values, and repeats every
// RUN_INTERVAL. With -once it performs a single run and exits non-zero when
// the run fails.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/lake-powell-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/lake-powell-etl/internal/adapter/kafka"
	"github.com/couchcryptid/lake-powell-etl/internal/adapter/weather"
	"github.com/couchcryptid/lake-powell-etl/internal/app"
	"github.com/couchcryptid/lake-powell-etl/internal/pipeline"
)

func main() {
	once := flag.Bool("once", false, "run one daily collection and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		slog.Error("etl failed", "error", err)
		os.Exit(1)
	}
}

func run(once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := app.Setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	cfg, logger := env.Config, env.Logger

	var weatherFetcher pipeline.WeatherFetcher
	if cfg.WeatherEnabled {
		weatherFetcher = weather.NewClient(cfg.WeatherAPIKey, env.Reservoir, cfg.HTTPTimeout, logger, env.Metrics)
		logger.Info("weather collection enabled")
	} else {
		logger.Info("weather collection disabled")
	}

	var sink pipeline.RecordPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		sink = writer
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	chain := env.WaterChain()
	logger.Info("water sources", "chain", chain.Strategies())
	collector := pipeline.NewCollector(chain, weatherFetcher, env.Store, sink, logger, env.Metrics, cfg.RunInterval)

	if once {
		defer closeWriter(writer, logger)
		return collector.RunDaily(ctx)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, collector, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := collector.Run(ctx); err != nil {
			logger.Error("collector error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	closeWriter(writer, logger)

	logger.Info("shutdown complete")
	return nil
}

func closeWriter(w *kafkaadapter.Writer, logger *slog.Logger) {
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
}

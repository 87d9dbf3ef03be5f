package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all collector settings, populated from environment variables.
type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// BatchSize bounds the rows per bulk upsert statement.
	BatchSize   int
	RunInterval time.Duration

	// Upstream HTTP behaviour.
	HTTPTimeout    time.Duration
	BulkTimeout    time.Duration
	RequestDelay   time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration

	WeatherAPIKey  string
	WeatherEnabled bool

	// Optional Kafka sink for reconciled daily records.
	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool

	StationCacheSize int
	HistoricalStart  time.Time
	ChunkDays        int
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	var runInterval, httpTimeout, bulkTimeout, requestDelay, retryBase time.Duration
	for _, d := range []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"RUN_INTERVAL", "24h", &runInterval},
		{"HTTP_TIMEOUT", "30s", &httpTimeout},
		{"BULK_TIMEOUT", "300s", &bulkTimeout},
		{"REQUEST_DELAY", "500ms", &requestDelay},
		{"RETRY_BASE_DELAY", "2s", &retryBase},
	} {
		v, err := parseDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}
	if runInterval <= 0 || httpTimeout <= 0 || bulkTimeout <= 0 {
		return nil, errors.New("RUN_INTERVAL, HTTP_TIMEOUT and BULK_TIMEOUT must be positive")
	}

	retryAttempts, err := parsePositiveInt("RETRY_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	chunkDays, err := parsePositiveInt("CHUNK_DAYS", 365)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("STATION_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	historicalStart, err := time.Parse("2006-01-02", sharedcfg.EnvOrDefault("HISTORICAL_START", "1980-06-22"))
	if err != nil {
		return nil, errors.New("invalid HISTORICAL_START")
	}

	weatherKey := os.Getenv("WEATHER_API_KEY")
	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		BatchSize:       batchSize,
		RunInterval:     runInterval,

		HTTPTimeout:    httpTimeout,
		BulkTimeout:    bulkTimeout,
		RequestDelay:   requestDelay,
		RetryAttempts:  retryAttempts,
		RetryBaseDelay: retryBase,

		WeatherAPIKey:  weatherKey,
		WeatherEnabled: weatherKey != "",

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "reservoir-daily"),
		KafkaEnabled: len(brokers) > 0,

		StationCacheSize: cacheSize,
		HistoricalStart:  historicalStart,
		ChunkDays:        chunkDays,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

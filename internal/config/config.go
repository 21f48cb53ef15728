package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"sc2-custom-tracker/internal/domain"
)

// Config is resolved once at construction and passed by value into each
// component. Nothing re-reads the environment at call time.
type Config struct {
	DBPath     string
	ServerPort string
	LogLevel   string
	RosterPath string

	PulseBaseURL string
	PulseAPIKey  string

	// Ingestion pipeline
	CutoffDate    time.Time
	MinConfidence domain.ConfidenceTier
	PollInterval  time.Duration
	BatchSize     int

	// Confidence thresholds (per-factor points keep their defaults; the
	// tier cut lines are the knobs operators actually retune).
	ConfidenceMediumThreshold int
	ConfidenceHighThreshold   int
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:     getEnv("DB_PATH", "tracker.db"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		RosterPath: getEnv("ROSTER_PATH", "community.csv"),

		PulseBaseURL: getEnv("PULSE_BASE_URL", "https://sc2pulse.nephest.com/sc2/api"),
		PulseAPIKey:  getEnv("PULSE_API_KEY", ""),

		PollInterval: time.Duration(getEnvInt("INGEST_POLL_INTERVAL_SECONDS", 3600)) * time.Second,
		BatchSize:    getEnvInt("INGEST_BATCH_SIZE", 25),

		ConfidenceMediumThreshold: getEnvInt("CONFIDENCE_MEDIUM_THRESHOLD", 5),
		ConfidenceHighThreshold:   getEnvInt("CONFIDENCE_HIGH_THRESHOLD", 8),
	}

	cutoffRaw := getEnv("INGEST_CUTOFF_DATE", "2020-01-01")
	cutoff, err := time.Parse("2006-01-02", cutoffRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid INGEST_CUTOFF_DATE %q: %w", cutoffRaw, err)
	}
	cfg.CutoffDate = cutoff.UTC()

	tierRaw := getEnv("INGEST_MIN_CONFIDENCE", "low")
	tier, ok := domain.ParseConfidenceTier(tierRaw)
	if !ok {
		return nil, fmt.Errorf("invalid INGEST_MIN_CONFIDENCE %q: want low, medium or high", tierRaw)
	}
	cfg.MinConfidence = tier

	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("INGEST_BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	if cfg.ConfidenceHighThreshold < cfg.ConfidenceMediumThreshold {
		return nil, fmt.Errorf("CONFIDENCE_HIGH_THRESHOLD (%d) must be >= CONFIDENCE_MEDIUM_THRESHOLD (%d)",
			cfg.ConfidenceHighThreshold, cfg.ConfidenceMediumThreshold)
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("roster_path", cfg.RosterPath).
		Time("cutoff_date", cfg.CutoffDate).
		Str("min_confidence", string(cfg.MinConfidence)).
		Dur("poll_interval", cfg.PollInterval).
		Int("batch_size", cfg.BatchSize).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

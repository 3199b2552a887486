// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	ServiceName string

	LogLevel  string
	LogFormat string

	BlockedPersonIDs          []int64
	LoanPeriodMonths          int
	RegistrationRatePerMinute int
	RegistrationBurst         int
	NationalIDPepper          string

	OTLPEndpoint       string
	RabbitURL          string
	RabbitExchange     string
	NotifyTimeout      time.Duration
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
	SeedData           bool

	// FaultBlastRadius, when positive, makes that share of store writes
	// fail on purpose. Used for resilience drills against a running API.
	FaultBlastRadius float64
	FaultSeed        uint64
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading env file: %w", err)
	}

	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServiceName:      getEnv("SERVICE_NAME", "bookledger"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "console"),
		NationalIDPepper: getEnv("NATIONAL_ID_PEPPER", "dev_pepper_change_in_prod"),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		RabbitURL:        getEnv("RABBITMQ_URL", ""),
		RabbitExchange:   getEnv("RABBITMQ_EXCHANGE", "bookledger.events"),
	}
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("LOG_FORMAT must be console or json, got %q", cfg.LogFormat)
	}

	var err error
	if cfg.BlockedPersonIDs, err = getIDs("BLOCKED_PERSON_IDS", "2"); err != nil {
		return Config{}, err
	}
	if cfg.LoanPeriodMonths, err = getInt("LOAN_PERIOD_MONTHS", 1); err != nil {
		return Config{}, err
	}
	if cfg.RegistrationRatePerMinute, err = getInt("REGISTRATION_RATE_PER_MINUTE", 5); err != nil {
		return Config{}, err
	}
	if cfg.RegistrationBurst, err = getInt("REGISTRATION_BURST", 5); err != nil {
		return Config{}, err
	}
	if cfg.NotifyTimeout, err = getDuration("NOTIFY_TIMEOUT", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SeedData, err = getBool("SEED_DATA", false); err != nil {
		return Config{}, err
	}
	if cfg.FaultBlastRadius, err = getRatio("FAULT_BLAST_RADIUS"); err != nil {
		return Config{}, err
	}
	if cfg.FaultSeed, err = getSeed("FAULT_SEED"); err != nil {
		return Config{}, err
	}
	cfg.CORSAllowedOrigins = getList("CORS_ALLOWED_ORIGINS", "*")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, raw)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

// getRatio parses a probability between 0 and 1. Unset means 0.
func getRatio(key string) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, fmt.Errorf("%s must be a number between 0 and 1, got %q", key, raw)
	}
	return f, nil
}

func getSeed(key string) (uint64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return uint64(time.Now().UnixNano()), nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an unsigned integer, got %q", key, raw)
	}
	return n, nil
}

func getList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getIDs parses a comma separated id list. An explicitly empty variable
// yields no ids.
func getIDs(key, defaultValue string) ([]int64, error) {
	ids := []int64{}
	for _, item := range getList(key, defaultValue) {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%s must list positive ids, got %q", key, item)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

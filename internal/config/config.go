// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds runtime configuration for report runs.
type Config struct {
	LogLevel string // log level: debug, info, warn, error (default "info")

	// Execution policy.
	ParallelAccounts  bool   // fan accounts out over goroutines (default true)
	ParallelThreshold int    // bound on in-flight accounts (default 8)
	FailPolicy        string // "continue" (default) or "abort"

	// Output.
	DuckDBPath   string // DuckDB database file, empty for in-memory
	OutputDir    string // directory for file sinks (default ".")
	ReplayDir    string // directory of recorded account responses
	CSVSeparator string // array cell separator for CSV output (default "|")
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch strings.ToLower(c.FailPolicy) {
	case "", "continue", "abort":
	default:
		return fmt.Errorf("FAIL_POLICY must be \"continue\" or \"abort\", got %q", c.FailPolicy)
	}
	if c.ParallelThreshold < 0 {
		return fmt.Errorf("PARALLEL_THRESHOLD must not be negative")
	}
	return nil
}

// AbortOnError reports whether the fail policy stops the run on the first
// account failure.
func (c *Config) AbortOnError() bool {
	return strings.EqualFold(c.FailPolicy, "abort")
}

// LoadFromEnv loads configuration from environment variables. All variables
// are optional.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel:         os.Getenv("LOG_LEVEL"),
		ParallelAccounts: parseBoolEnvDefault("PARALLEL_ACCOUNTS", true),
		FailPolicy:       os.Getenv("FAIL_POLICY"),
		DuckDBPath:       os.Getenv("DUCKDB_PATH"),
		OutputDir:        os.Getenv("OUTPUT_DIR"),
		ReplayDir:        os.Getenv("REPLAY_DIR"),
		CSVSeparator:     os.Getenv("CSV_SEPARATOR"),
	}

	if v := os.Getenv("PARALLEL_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ParallelThreshold = n
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ParallelThreshold == 0 {
		cfg.ParallelThreshold = 8
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if cfg.CSVSeparator == "" {
		cfg.CSVSeparator = "|"
	}
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

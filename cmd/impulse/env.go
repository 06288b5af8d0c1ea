package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// envConfig holds the IMPULSE_* overrides
type envConfig struct {
	Settings string
	Workers  int
	LogLevel slog.Level
}

// loadEnv reads path, or ./.env when path is empty and the file exists, into
// the environment and parses the IMPULSE_* variables
func loadEnv(path string) (envConfig, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return envConfig{}, fmt.Errorf("load env %s: %w", path, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return envConfig{}, fmt.Errorf("load env: %w", err)
	}

	cfg := envConfig{
		Settings: os.Getenv("IMPULSE_SETTINGS"),
		LogLevel: slog.LevelWarn,
	}

	if v := os.Getenv("IMPULSE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return envConfig{}, fmt.Errorf("IMPULSE_WORKERS: invalid worker count %q", v)
		}
		cfg.Workers = n
	}

	if v := os.Getenv("IMPULSE_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return envConfig{}, fmt.Errorf("IMPULSE_LOG_LEVEL: %w", err)
		}
	}

	return cfg, nil
}

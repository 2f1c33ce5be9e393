package config

import (
	"os"
	"time"
)

// Config holds runtime knobs for the daemon. The job settings themselves
// live in settings.yaml (see settings.go); these only tune the loop and
// the HTTP surfaces.
type Config struct {
	Env          string
	HTTPAddr     string
	MetricsAddr  string
	PollInterval time.Duration
}

// Load reads configuration from environment variables with sane defaults for local use.
func Load() Config {
	return Config{
		Env:          getEnv("APP_ENV", "dev"),
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:  getEnv("METRICS_ADDR", ":9090"),
		PollInterval: getEnvDuration("POLL_INTERVAL", 3*time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

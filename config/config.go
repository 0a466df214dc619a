// Package config loads the server's runtime configuration via
// spf13/viper: config file, environment variables, and command-line
// flags, in that precedence. Grounded on the teacher's cli/root.go
// (same viper.BindPFlag + AutomaticEnv wiring) and config/config.go
// (the EVE_ environment prefix convention, generalized to MOLAP_).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configurable surface of the server (spec AMBIENT
// STACK: "Server root directory, listen address, Redis URL for the
// worker gateway, and log level are the configurable surface").
type Config struct {
	RootDir      string
	ListenAddr   string
	RedisURL     string
	LogLevel     string
	LogFormat    string
	SessionTTL   time.Duration
	WorkerTimeout time.Duration
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		RootDir:       "./data",
		ListenAddr:    ":7777",
		RedisURL:      "redis://localhost:6379/0",
		LogLevel:      "info",
		LogFormat:     "text",
		SessionTTL:    30 * time.Minute,
		WorkerTimeout: 30 * time.Second,
	}
}

// Load reads viper's current state (already populated by the config
// file, environment, and flags) into a Config, falling back to
// Defaults for anything unset.
func Load(v *viper.Viper) (Config, error) {
	cfg := Defaults()

	if s := v.GetString("root_dir"); s != "" {
		cfg.RootDir = s
	}
	if s := v.GetString("listen_addr"); s != "" {
		cfg.ListenAddr = s
	}
	if s := v.GetString("redis_url"); s != "" {
		cfg.RedisURL = s
	}
	if s := v.GetString("log_level"); s != "" {
		cfg.LogLevel = s
	}
	if s := v.GetString("log_format"); s != "" {
		cfg.LogFormat = s
	}
	if d := v.GetDuration("session_ttl"); d > 0 {
		cfg.SessionTTL = d
	}
	if d := v.GetDuration("worker_timeout"); d > 0 {
		cfg.WorkerTimeout = d
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return cfg, fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	return cfg, nil
}

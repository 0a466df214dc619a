// Package logging provides the structured logger shared by every olap
// component. It configures a single logrus.Logger per process and hands
// out field-scoped loggers to callers.
package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Config controls how the process-wide logger is built.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // text|json
}

// DefaultConfig returns sensible defaults for interactive use.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

// Base is the process-wide logger, replaced by New on startup.
var Base = logrus.New()

// New builds and installs the process-wide logger from cfg.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	switch cfg.Level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}

	logger.SetOutput(os.Stderr)
	Base = logger
	return logger
}

// For returns a logger scoped to a named component, e.g. For("persist").
func For(component string) *logrus.Entry {
	return Base.WithField("component", component)
}

// Fatal logs at error level and exits the process. Used by persistence
// save/rename/remove paths per spec §7: corruption there must not risk
// silently losing data, so the process exits rather than continuing.
func Fatal(component, msg string, fields logrus.Fields) {
	Base.WithFields(fields).WithField("component", component).Error(msg)
	os.Exit(1)
}

// Package logging provides the structured logger shared by every
// Submarine component, following the EVE service family's logging
// conventions: level/format/service configuration backed by logrus.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Level is a logging verbosity level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config configures a new logger instance.
type Config struct {
	Level   Level
	Format  string // "json" or "text"
	Service string
}

// DefaultConfig returns a text-formatted, info-level logger config.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: "text", Service: "submarine"}
}

// New builds a *logrus.Entry scoped to the configured service name.
func New(cfg Config) *logrus.Entry {
	logger := logrus.New()

	switch cfg.Level {
	case LevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LevelError:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	}

	entry := logger.WithField("service", cfg.Service)
	return entry
}

// Nop returns a logger that discards everything, for components built
// without an explicit logger (tests, library callers that don't care).
func Nop() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(discard{})
	return logrus.NewEntry(logger)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Package logger provides the structured logger used across the property
// store engine and its optional domain-stack components.
package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger so call sites depend on this package instead
// of on logrus directly.
type Logger struct {
	*logrus.Logger
}

// Config controls level and format of the logger; output always goes to
// stdout.
type Config struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=text"`
}

// New builds a Logger from Config, defaulting to info level / text format
// on any parse error rather than failing construction.
func New(cfg Config) *Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	log.SetOutput(os.Stdout)

	return &Logger{Logger: log}
}

// NewDefault returns an info-level, text-formatted logger, for call sites
// that don't load Config from the environment (tests, small demo
// binaries). The component argument is not attached to the logger's
// output: log lines carry no component field.
func NewDefault(component string) *Logger {
	l := New(Config{Level: "info", Format: "text"})
	return &Logger{Logger: l.Logger.WithField("component", component).Logger}
}

// WithFields returns a log entry carrying the given structured fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// Nop returns a Logger that discards all output, for tests that don't
// want to assert on log lines but need a non-nil logger.
func Nop() *Logger {
	log := logrus.New()
	log.SetOutput(nopWriter{})
	return &Logger{Logger: log}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

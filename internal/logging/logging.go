// Package logging provides the small logger interface the dispatcher logs
// through, and a zerolog-backed implementation. Grounded on
// imulab-go-scim's protocol/log.Logger interface and its
// server/logger/zero.go zerolog adapter.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the service-provider interface every internal package logs
// through, so none of them import zerolog directly.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Zero returns a Logger backed by zerolog, writing to stderr at level.
func Zero(level zerolog.Level) Logger {
	return &zeroLogger{
		logger: zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger(),
	}
}

type zeroLogger struct {
	logger zerolog.Logger
}

func (l *zeroLogger) Debug(format string, args ...interface{}) { l.logger.Debug().Msgf(format, args...) }
func (l *zeroLogger) Info(format string, args ...interface{})  { l.logger.Info().Msgf(format, args...) }
func (l *zeroLogger) Warn(format string, args ...interface{})  { l.logger.Warn().Msgf(format, args...) }
func (l *zeroLogger) Error(format string, args ...interface{}) { l.logger.Error().Msgf(format, args...) }

// nopLogger discards everything; OrNop returns one so callers never need a
// nil check before logging.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Nop returns a Logger whose methods are no-ops.
func Nop() Logger { return nopLogger{} }

// OrNop returns l, or Nop() if l is nil, so a Dispatcher constructed
// without an explicit logger never has to nil-check before logging.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// LevelFromString maps a log-level flag value to a zerolog.Level, per
// cmd/internal/args/logger.go's switch; unrecognized values default to
// Info, same as the teacher's source.
func LevelFromString(s string) zerolog.Level {
	switch s {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

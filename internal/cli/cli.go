// Package cli carries the logger and configuration of a command run
// through its context.
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/operator-framework/wcsp/internal/config"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	configKey
	runKey
)

// NewLogger writes timestamped records at level to w.
func NewLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// NewRun tags logger with a fresh run id and attaches both, with c, to ctx.
func NewRun(ctx context.Context, logger *log.Logger, c config.Config) context.Context {
	id := uuid.New()
	ctx = context.WithValue(ctx, runKey, id)
	ctx = context.WithValue(ctx, loggerKey, logger.With("run", id.String()))
	return context.WithValue(ctx, configKey, c)
}

// Logger returns the logger of ctx, or log.Default() when there is none.
func Logger(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

// Config returns the configuration of ctx, or the defaults.
func Config(ctx context.Context) config.Config {
	if c, ok := ctx.Value(configKey).(config.Config); ok {
		return c
	}
	return config.Default()
}

func Run(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(runKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

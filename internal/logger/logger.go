// Package logger provides the service's configured zerolog logger.
package logger

import (
	"io"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	zpkgerrors "github.com/rs/zerolog/pkgerrors"
)

// New returns a JSON logger writing to stdout tagged with serviceName.
// Call sites should use .Stack() on error events to include stacks.
func New(serviceName string) zerolog.Logger {
	return NewWithWriter(serviceName, os.Stdout)
}

// NewWithWriter is New with an explicit sink; tests pass a buffer.
func NewWithWriter(serviceName string, w io.Writer) zerolog.Logger {
	// pkg/errors stacks are rendered when present; plain errors get one attached.
	zerolog.ErrorStackMarshaler = func(err error) interface{} {
		type stackTracer interface{ StackTrace() pkgerrors.StackTrace }
		if _, ok := err.(stackTracer); !ok {
			err = pkgerrors.WithStack(err)
		}
		return zpkgerrors.MarshalStack(err)
	}

	return zerolog.New(w).With().
		Str("service", serviceName).
		Timestamp().
		Logger()
}

// SetLevel applies a textual level ("debug", "info", ...) globally; unknown values keep info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

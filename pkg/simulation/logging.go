package simulation

import (
	"fmt"
	"io"
	"strings"

	golog "github.com/tochemey/goakt/v3/log"
)

// ParseLogLevel maps a config log level to the actor system's levels. The
// empty string means info.
func ParseLogLevel(s string) (golog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return golog.InfoLevel, nil
	case "debug":
		return golog.DebugLevel, nil
	case "warn", "warning":
		return golog.WarningLevel, nil
	case "error":
		return golog.ErrorLevel, nil
	}
	return golog.InvalidLevel, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
}

// NewLogger builds the logger shared by the scheduler and the actor system.
func NewLogger(level string, w io.Writer) (golog.Logger, error) {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return golog.New(lvl, w), nil
}

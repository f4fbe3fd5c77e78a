package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns a JSON logger in production and a console logger elsewhere.
func New(env, level string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stdout, env, level)
}

func NewWithWriter(w io.Writer, env, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if env != "prod" {
		out = zerolog.ConsoleWriter{Out: w}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

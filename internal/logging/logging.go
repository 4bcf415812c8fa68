package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// New creates a console logger writing to w at the named level.
func New(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), errors.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// Context returns ctx carrying a stderr logger at level. An invalid level
// falls back to info.
func Context(ctx context.Context, level string) context.Context {
	logger, err := New(os.Stderr, level)
	if err != nil {
		logger, _ = New(os.Stderr, zerolog.LevelInfoValue)
		logger.Warn().Err(err).Msg("using info log level")
	}
	return logger.WithContext(ctx)
}

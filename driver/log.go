package driver

import (
	"io"
	"log/slog"
	"os"
)

// Logging configures the messages of one screen. Debug messages are only
// written when Debug is set, which the Debug option may also turn on.
type Logging struct {
	Debug  bool
	Output io.Writer
}

func (l Logging) newLogger(screen int) (*slog.Logger, *slog.LevelVar) {
	out := l.Output
	if out == nil {
		out = os.Stderr
	}
	level := &slog.LevelVar{}
	setDebug(level, l.Debug)
	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("driver", "freedreno", "screen", screen), level
}

func setDebug(level *slog.LevelVar, debug bool) {
	if debug {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

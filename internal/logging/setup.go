package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options mirror the logging section of the runner config.
type Options struct {
	Output     string // "stdout", "stderr", or a file path
	Level      string // "debug", "info", "warn", "error" (empty means info)
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup builds the process logger. When Output is a file path the returned
// closer owns the rotating file and must be closed on shutdown; for stdout
// and stderr it is a no-op.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	var (
		sink   io.Writer
		closer io.Closer = nopCloser{}
	)

	switch opts.Output {
	case "", "stdout":
		sink = os.Stdout
	case "stderr":
		sink = os.Stderr
	default:
		rw, err := NewRotatingWriter(opts.Output, opts.MaxSizeMB, opts.MaxBackups, opts.MaxAgeDays)
		if err != nil {
			return nil, nil, err
		}
		sink = rw
		closer = rw
	}

	handler := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: parseLevel(opts.Level)})
	return slog.New(handler), closer, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

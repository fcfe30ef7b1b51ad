package observability

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig is the plain-value logging configuration NewLogger consumes.
// Kept independent of package federation's config surface (rather than
// importing federation.LogConfig directly) so package observability has no
// import-cycle back through federation, which itself wires an
// observability.StatusProvider.
type LogConfig struct {
	Level      string
	Format     string
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewLogger builds the process-wide slog.Logger from cfg, following the
// teacher's cmd/server/main.go slog.NewJSONHandler setup but adding the
// rotating file sink the teacher's own dependency list already carries
// (gopkg.in/natefinch/lumberjack.v2) whenever cfg.Filename is set.
func NewLogger(cfg LogConfig) *slog.Logger {
	level := parseLevel(cfg.Level)

	var out io.Writer = os.Stdout
	if cfg.Filename != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   cfg.Compress,
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
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

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

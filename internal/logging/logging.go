package logging

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

type Options struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

var def atomic.Value

func init() {
	cfg := &slog.HandlerOptions{Level: slog.LevelInfo}
	h := slog.NewTextHandler(os.Stderr, cfg)
	def.Store(slog.New(h))
}

func Configure(opts Options) {
	lvl := parseLevel(opts.Level)
	cfg := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(os.Stderr, cfg)
	} else {
		h = slog.NewTextHandler(os.Stderr, cfg)
	}
	Set(slog.New(h))
}

// Set swaps the process logger; tests use it to capture output.
func Set(l *slog.Logger) {
	if l != nil {
		def.Store(l)
	}
}

func parseLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
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

func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}

// Topic returns L() scoped to one topic and operation, the pair every
// producer and consumer log line carries.
func Topic(topic, op string) *slog.Logger {
	return L().With("topic", topic, "op", op)
}

// InitFromEnv overrides opts with EVENTBUS_LOG_LEVEL / EVENTBUS_LOG_JSON when set.
func InitFromEnv(opts Options) {
	if lvl := strings.TrimSpace(os.Getenv("EVENTBUS_LOG_LEVEL")); lvl != "" {
		opts.Level = lvl
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("EVENTBUS_LOG_JSON"))); err == nil {
		opts.JSON = b
	}
	Configure(opts)
}

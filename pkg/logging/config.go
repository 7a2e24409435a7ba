package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config describes the logger built by NewLoggerFromConfig.
type Config struct {
	Level string

	// Format is auto, json or console. Auto picks console on a terminal.
	Format string

	// Output is stderr, stdout or a file path. Writer takes precedence.
	Output string
	Writer io.Writer

	// TimeFormat is kitchen, rfc3339 or a Go time layout.
	TimeFormat string

	NoColor   bool
	AddCaller bool
}

// NewLoggerFromConfig builds a logger and sets the global level to match.
// An unknown level falls back to info and an unwritable file to stderr.
func NewLoggerFromConfig(cfg *Config) zerolog.Logger {
	if cfg == nil {
		cfg = &Config{}
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	out, terminal := openOutput(cfg)
	if useConsole(cfg.Format, terminal) {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: timeLayout(cfg.TimeFormat),
			NoColor:    cfg.NoColor,
		}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.AddCaller || level == zerolog.TraceLevel {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// LevelFromVerbosity maps a repeated -v flag to a level name.
// Zero keeps info, one enables debug, two or more enable trace.
func LevelFromVerbosity(count int) string {
	switch {
	case count <= 0:
		return "info"
	case count == 1:
		return "debug"
	default:
		return "trace"
	}
}

func openOutput(cfg *Config) (io.Writer, bool) {
	if cfg.Writer != nil {
		return cfg.Writer, false
	}
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		return os.Stderr, stderrIsTerminal()
	case "stdout":
		return os.Stdout, false
	}
	file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return os.Stderr, stderrIsTerminal()
	}
	return file, false
}

func useConsole(format string, terminal bool) bool {
	switch strings.ToLower(format) {
	case "console", "pretty":
		return true
	case "", "auto":
		return terminal
	default:
		return false
	}
}

func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(level)
	if level == "warning" {
		return zerolog.WarnLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

func timeLayout(name string) string {
	switch strings.ToLower(name) {
	case "", "kitchen":
		return time.Kitchen
	case "rfc3339":
		return time.RFC3339
	default:
		return name
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

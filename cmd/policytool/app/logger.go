package app

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/agentstation/policytool/pkg/logging"
)

// NewLogger creates a logger from the settings. Log level precedence:
//  1. --log-level flag or LOG_LEVEL
//  2. -v count
//  3. info
func NewLogger(settings *Settings) zerolog.Logger {
	level := determineLogLevel(settings)
	return logging.NewLoggerFromConfig(&logging.Config{
		Level:      level,
		Format:     settings.LogFormat,
		Output:     settings.LogOutput,
		TimeFormat: "rfc3339",
		NoColor:    os.Getenv("NO_COLOR") != "",
		AddCaller:  level == "trace",
	})
}

func determineLogLevel(settings *Settings) string {
	if settings.LogLevel != "" {
		validated := validateLogLevel(settings.LogLevel)
		if validated != settings.LogLevel {
			fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using %q\n", settings.LogLevel, validated)
		}
		return validated
	}
	return logging.LevelFromVerbosity(settings.Verbose)
}

func validateLogLevel(level string) string {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return level
	default:
		return "info"
	}
}

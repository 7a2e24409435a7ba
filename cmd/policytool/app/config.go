package app

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables of the global settings,
// as in POLICYTOOL_FORMAT.
const EnvPrefix = "POLICYTOOL"

// Settings are the global CLI settings, from environment variables and
// then from persistent flags.
type Settings struct {
	// ConfigFile is the environments file. Empty searches the default
	// locations.
	ConfigFile string

	Verbose     int
	Format      string
	MetricsFile string

	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadSettings reads POLICYTOOL_* and LOG_* environment variables.
func LoadSettings() *Settings {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return &Settings{
		ConfigFile:  v.GetString("config"),
		Format:      v.GetString("format"),
		MetricsFile: v.GetString("metrics_file"),

		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput: getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

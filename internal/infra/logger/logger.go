// internal/infra/logger/logger.go
package logger

import (
	"os"
	"strings"

	"property_lifecycle_engine/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger.
var Log = logrus.New()

// Init applies level and formatter from configuration.
func Init(cfg *config.AppConfig) {
	Log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		Log.WithError(err).Warnf("Unknown log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)
	Log.SetFormatter(formatterFor(cfg.Environment))

	Log.WithFields(logrus.Fields{
		"level":       level.String(),
		"environment": cfg.Environment,
	}).Debug("Logger configured")
}

// formatterFor emits JSON in deployed environments and coloured text elsewhere.
func formatterFor(env string) logrus.Formatter {
	switch strings.ToLower(env) {
	case "production", "staging":
		return &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"}
	default:
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		}
	}
}

// Base returns the root entry every component logger derives from.
func Base(cfg *config.AppConfig) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"service":     "lifecycled",
		"environment": cfg.Environment,
	})
}

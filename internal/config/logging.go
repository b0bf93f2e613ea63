package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the standard logrus logger: JSON outside dev, text
// with full timestamps in dev.
func (a App) SetupLogging() *logrus.Logger {
	log := logrus.StandardLogger()
	if a.Env == "dev" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(a.LogLevel)
	if err != nil {
		log.WithField("level", a.LogLevel).Warn("invalid LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
	return log
}

package config

import (
	"github.com/sirupsen/logrus"
)

func parseLevel(s string) (logrus.Level, error) {
	if s == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(s)
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := parseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

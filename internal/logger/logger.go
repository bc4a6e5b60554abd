package logger

import (
	"os"

	"ecommerce-order-service/internal/config"

	log "github.com/sirupsen/logrus"
)

// Init configures the global logrus logger from the LOG_* settings.
func Init(cfg config.Log) {
	if cfg.Format == "text" {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}
	log.SetOutput(os.Stdout)

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithField("level", cfg.Level).Warn("Unknown log level, falling back to info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// Package logger initializes the process-wide logrus logger from the loaded
// configuration.
package logger

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/whisperwall/whisperwall/cmd/whisperwall/config"
)

// Init configures logrus according to the logging configuration. Call after
// config.Load.
func Init() {
	dir, stderr, level := config.LoggingConf()

	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
	log.SetFormatter(
		&log.TextFormatter{
			FullTimestamp: true,
		},
	)

	var outputs []io.Writer
	if dir != "" {
		f, err := os.OpenFile(
			filepath.Join(dir, "whisperwall.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644,
		)
		if err != nil {
			log.WithError(err).Fatal("could not open log file")
		}
		outputs = append(outputs, f)
	}
	if stderr || len(outputs) == 0 {
		outputs = append(outputs, os.Stderr)
	}
	log.SetOutput(io.MultiWriter(outputs...))
}

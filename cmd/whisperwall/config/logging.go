package config

import (
	"github.com/pkg/errors"
	"github.com/zachmann/go-utils/fileutils"
)

// loggingConf holds all logging-related configuration under the `logging` key.
//
// YAML example:
//
//	logging:
//	  dir: /var/log/whisperwall
//	  stderr: true
//	  level: INFO
type loggingConf struct {
	// Dir, when set, writes logs to a whisperwall.log file in that directory.
	Dir string `yaml:"dir"`
	// StdErr additionally writes logs to stderr.
	StdErr bool `yaml:"stderr"`
	// Level sets the verbosity (e.g. DEBUG, INFO, WARN, ERROR).
	Level string `yaml:"level"`
}

func (c *loggingConf) validate() error {
	if c.Dir != "" && !fileutils.FileExists(c.Dir) {
		return errors.Errorf("logging directory '%s' does not exist", c.Dir)
	}
	return nil
}

var defaultLoggingConf = loggingConf{
	StdErr: true,
	Level:  "INFO",
}

// LoggingConf returns the loaded logging configuration; used by the logger
// package at init time.
func LoggingConf() (dir string, stderr bool, level string) {
	c := Get().Logging
	return c.Dir, c.StdErr, c.Level
}

package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var stderrTTY = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

// newLogger builds the process logger. Progress goes to stderr so stdout
// only carries the banner and the summary.
func newLogger(verbose bool, format string) (*logrus.Logger, error) {
	logger := &logrus.Logger{
		Out:   colorable.NewColorableStderr(),
		Hooks: make(logrus.LevelHooks),
		Level: logrus.InfoLevel,
	}
	if verbose {
		logger.Level = logrus.DebugLevel
	}

	switch format {
	case "", "text":
		logger.Formatter = &logrus.TextFormatter{
			ForceColors:   stderrTTY,
			DisableColors: !stderrTTY,
			FullTimestamp: true,
		}
	case "json":
		logger.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	return logger, nil
}

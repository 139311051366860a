// Package logging builds the single root logrus.Entry every component is
// constructed with (SPEC_FULL.md §11): no deep component calls a package
// global logger directly, and structured fields like "volume" or
// "component" are attached once per sub-logger rather than per call site.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ntfsearch/fastfind/internal/config"
)

// New builds a root *logrus.Entry from the resolved log level and format,
// writing to w (os.Stderr in production; a test buffer in tests).
func New(level string, format config.LogFormat, w io.Writer) (*logrus.Entry, error) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetOutput(w)
	switch format {
	case config.LogFormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logrus.NewEntry(logger), nil
}

// ForVolume returns a sub-logger with the volume field attached once, for
// threading into a single volume's pipeline (Volume Reader, MFT Parser,
// Index, Journal Consumer).
func ForVolume(log *logrus.Entry, volume string) *logrus.Entry {
	return log.WithField("volume", volume)
}

// ForComponent returns a sub-logger tagged with a component name, used by
// process-wide singletons (IPC server, Metrics Registry, Supervisor).
func ForComponent(log *logrus.Entry, component string) *logrus.Entry {
	return log.WithField("component", component)
}

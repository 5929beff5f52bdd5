// Package logger wraps logrus behind the small surface the rest of the
// tree logs through. Every subsystem that logs takes a *Logger; none of
// them configure logrus themselves.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a wrapper around logrus.Logger.
type Logger struct {
	*logrus.Logger
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePrefix string `mapstructure:"file_prefix"`
}

// New creates a logger from cfg. An unparseable level falls back to info;
// an unknown format falls back to full-timestamp text; anything but
// "file" output writes to stdout.
func New(cfg LoggingConfig) *Logger {
	l := logrus.New()
	l.SetLevel(parseLevel(cfg.Level))
	l.SetFormatter(formatterFor(cfg.Format))
	l.SetOutput(outputFor(l, cfg))
	return &Logger{Logger: l}
}

// NewDefault creates an info-level text logger to stdout, tagged with a
// component name so log lines from embedded use (no config in sight) are
// still attributable to their subsystem.
func NewDefault(component string) *Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetOutput(os.Stdout)
	if component != "" {
		l.AddHook(&componentHook{component: component})
	}
	return &Logger{Logger: l}
}

// Component returns an entry pre-tagged with the subsystem name, for
// callers that share one Logger across subsystems.
func (l *Logger) Component(name string) *logrus.Entry {
	return l.Logger.WithField("component", name)
}

func parseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func formatterFor(format string) logrus.Formatter {
	if strings.ToLower(format) == "json" {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{FullTimestamp: true}
}

// outputFor resolves cfg.Output to a writer. File output tees to stdout
// as well, so a foregrounded server stays observable; failures to set up
// the file degrade to stdout-only rather than erroring out.
func outputFor(l *logrus.Logger, cfg LoggingConfig) io.Writer {
	if strings.ToLower(cfg.Output) != "file" {
		return os.Stdout
	}
	prefix := cfg.FilePrefix
	if prefix == "" {
		prefix = "graphdb"
	}
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		l.Errorf("Failed to create logs directory: %v", err)
		return os.Stdout
	}
	logPath := filepath.Join(logDir, prefix+".log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		l.Errorf("Failed to open log file: %v", err)
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, file)
}

// componentHook stamps every entry with the component name NewDefault was
// given.
type componentHook struct {
	component string
}

func (h *componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *componentHook) Fire(e *logrus.Entry) error {
	e.Data["component"] = h.component
	return nil
}

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/notefeed/internal/model"
)

// Options selects where log output goes.
type Options struct {
	// Verbose forces the debug level.
	Verbose bool
	// Console also writes to stderr. The TUI leaves it off so log lines
	// do not tear the screen.
	Console bool
}

// Setup builds the application logger from cfg. The returned closer
// releases the log file.
func Setup(cfg model.LogConfig, opts Options) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	log.SetFormatter(&logrus.JSONFormatter{
		DisableHTMLEscape: true,
		TimestampFormat:   time.RFC3339Nano,
	})

	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	if opts.Console {
		writers = append(writers, os.Stderr)
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	switch len(writers) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(writers[0])
	default:
		log.SetOutput(io.MultiWriter(writers...))
	}

	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

package shell

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/vaultshell/classify"
)

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Shell) { s.cfg.Logger = logger }
}

// WithMetrics records driver metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Shell) { s.metrics = m }
}

// WithClassifier replaces the output classifier. MarkersFile is ignored
// when a classifier is supplied.
func WithClassifier(c *classify.Classifier) Option {
	return func(s *Shell) { s.classifier = c }
}

// WithBinary sets the CLI executable and its arguments.
func WithBinary(path string, args ...string) Option {
	return func(s *Shell) {
		s.cfg.Binary = path
		s.cfg.Args = args
	}
}

// WithStartupTimeout sets the startup timeout.
func WithStartupTimeout(d time.Duration) Option {
	return func(s *Shell) { s.cfg.StartupTimeout = d }
}

// WithCommandTimeout sets the default per-command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Shell) { s.cfg.CommandTimeout = d }
}

// WithLockFile sets the cross-process session lock file.
func WithLockFile(path string) Option {
	return func(s *Shell) { s.cfg.LockFile = path }
}

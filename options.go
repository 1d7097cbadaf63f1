package typedkv

import (
	"time"

	"github.com/khicago/typedkv/codec"
)

type settings struct {
	driver           Driver
	registry         *codec.Registry
	logger           Logger
	logTag           string
	clearTimeout     time.Duration
	clearConcurrency int
	scanCount        int64
	persistOnClose   bool
}

func defaultSettings() settings {
	return settings{
		logger:           defaultLogger,
		clearTimeout:     defaultClearTimeout,
		clearConcurrency: defaultClearConcurrency,
		scanCount:        defaultScanPage,
		persistOnClose:   true,
	}
}

// Option customizes a Store.
type Option func(*settings)

// WithDriver specifies the backend driver.
// If not provided, a private NewMemory() backend is used.
func WithDriver(d Driver) Option {
	return func(s *settings) {
		if d != nil {
			s.driver = d
		}
	}
}

// WithRegistry resolves the configured type names through reg, which is how
// enum types become configurable.
func WithRegistry(reg *codec.Registry) Option {
	return func(s *settings) {
		s.registry = reg
	}
}

// WithLogger specifies a logger for lifecycle and failure messages.
// If not provided, nothing is logged.
func WithLogger(logger Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLogTag sets a tag prefix for all log messages.
// Useful for telling apart stores that share a logger.
func WithLogTag(tag string) Option {
	return func(s *settings) {
		s.logTag = tag
	}
}

// WithClearTimeout bounds a prefix-scoped Clear, scan and deletes included. The default is 10 seconds.
func WithClearTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.clearTimeout = d
		}
	}
}

// WithClearConcurrency caps the page deletes a prefix-scoped clear keeps in
// flight. The default is 8.
func WithClearConcurrency(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.clearConcurrency = n
		}
	}
}

// WithScanCount sets the COUNT hint passed to each pattern scan round.
func WithScanCount(n int64) Option {
	return func(s *settings) {
		if n > 0 {
			s.scanCount = n
		}
	}
}

// WithPersistOnClose controls whether Close asks the backend to persist its
// data before disconnecting. It is on by default.
func WithPersistOnClose(enabled bool) Option {
	return func(s *settings) {
		s.persistOnClose = enabled
	}
}

package migration

import (
	"log/slog"
	"time"
)

// Option is a function that allows configuring the Migrator.
type Option func(*Migrator) error

// WithLogger sets the logger used by the Migrator.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) error {
		m.logger = logger.With("component", "migrator")
		return nil
	}
}

// WithTable sets the name of the table tracking applied migrations.
func WithTable(table string) Option {
	return func(m *Migrator) error {
		m.table = table
		return nil
	}
}

// WithTimeNow sets the function used to retrieve the current time.
func WithTimeNow(timeNowFn func() time.Time) Option {
	return func(m *Migrator) error {
		m.timeNow = timeNowFn
		return nil
	}
}

// DefaultOptions returns the default Migrator options.
func DefaultOptions() []Option {
	return []Option{
		WithLogger(slog.Default()),
		WithTable(DefaultTable),
		WithTimeNow(time.Now),
	}
}

package corosock

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultSchedulerName labels schedulers created without a name.
const DefaultSchedulerName = "default"

// Config holds the settings of a Scheduler.
type Config struct {
	// Name labels the scheduler in logs and metrics.
	Name string

	// Logger receives scheduler events. Nil falls back to the
	// package logger, which is a no-op unless SetLogger was called.
	Logger *zap.Logger

	// Registerer enables Prometheus metrics when non-nil. Use a
	// dedicated prometheus.NewRegistry() per scheduler to avoid
	// duplicate registration when several share a process.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a Config with metrics disabled and the
// package logger.
func DefaultConfig() Config {
	return Config{
		Name:   DefaultSchedulerName,
		Logger: Logger(),
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultSchedulerName
	}
	if c.Logger == nil {
		c.Logger = Logger()
	}
	return c
}

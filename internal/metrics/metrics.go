package metrics

import (
	"time"

	"github.com/rs/zerolog"
)

// Collector emits buffer operation metrics as structured log lines.
type Collector struct {
	logger zerolog.Logger
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// Track append metrics
func (c *Collector) TransitionAppended(position, size, capacity int, duration time.Duration) {
	c.logger.Info().
		Str("metric", "transition_appended").
		Int("position", position).
		Int("size", size).
		Int("capacity", capacity).
		Dur("duration", duration).
		Msg("Append metric")
}

// Track sampling metrics
func (c *Collector) BatchSampled(method string, requested, realized int, duration time.Duration) {
	c.logger.Info().
		Str("metric", "batch_sampled").
		Str("method", method).
		Int("requested", requested).
		Int("realized", realized).
		Dur("duration", duration).
		Msg("Sample metric")
}

// Track clear metrics
func (c *Collector) BufferCleared(cleared int) {
	c.logger.Info().
		Str("metric", "buffer_cleared").
		Int("cleared", cleared).
		Msg("Clear metric")
}

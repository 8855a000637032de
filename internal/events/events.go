package events

import (
	"context"
	"time"
)

// Event types emitted by the buffer service.
const (
	TypeAppend = "transition_appended"
	TypeSample = "batch_sampled"
	TypeClear  = "buffer_cleared"
)

// BufferEvent describes a buffer lifecycle change for downstream
// consumers (trainers waiting on occupancy, dashboards).
type BufferEvent struct {
	Type      string    `json:"type"`
	Size      int       `json:"size"`
	Capacity  int       `json:"capacity"`
	Position  int       `json:"position,omitempty"`
	BatchSize int       `json:"batch_size,omitempty"`
	Method    string    `json:"method,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits buffer events.
type Publisher interface {
	PublishBufferEvent(ctx context.Context, event BufferEvent) error
	Close()
}

// NoopPublisher discards all events. Used when eventing is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishBufferEvent(ctx context.Context, event BufferEvent) error {
	return nil
}

func (NoopPublisher) Close() {}

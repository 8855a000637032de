package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSPublisher implements Publisher using NATS.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher connects to NATS and returns a publisher emitting on
// the given subject.
func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}

	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}, nil
}

// Close closes the NATS connection.
func (n *NATSPublisher) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// PublishBufferEvent publishes a buffer event, routing clears and
// appends to type-specific subjects as well.
func (n *NATSPublisher) PublishBufferEvent(ctx context.Context, event BufferEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := n.conn.Publish(n.subject, data); err != nil {
		n.logger.Error().Err(err).Str("subject", n.subject).Msg("Failed to publish buffer event")
		return err
	}

	if err := n.conn.Publish(n.subject+"."+event.Type, data); err != nil {
		n.logger.Error().Err(err).
			Str("subject", n.subject+"."+event.Type).
			Msg("Failed to publish routed buffer event")
		return err
	}

	return nil
}

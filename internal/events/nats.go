package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus publishes and consumes events over a NATS connection.
type NATSBus struct {
	conn *nats.Conn
}

// ConnectNATS dials the broker at url.
func ConnectNATS(url string) (*NATSBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("clipforge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBus{conn: conn}, nil
}

// Close drains pending messages and closes the connection.
func (b *NATSBus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// IsConnected reports whether the connection is currently usable.
func (b *NATSBus) IsConnected() bool {
	return b != nil && b.conn != nil && b.conn.Status() == nats.CONNECTED
}

// PublishVideoUploaded implements Publisher.
func (b *NATSBus) PublishVideoUploaded(ctx context.Context, event VideoUploaded) error {
	return b.publish(ctx, SubjectVideoUploaded, event)
}

func (b *NATSBus) publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers every message on subject to handler. Handler errors are reported to onError.
func (b *NATSBus) Subscribe(subject string, handler func(data []byte) error, onError func(error)) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(msg.Data); err != nil && onError != nil {
			onError(fmt.Errorf("%s: %w", subject, err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

var _ Publisher = (*NATSBus)(nil)

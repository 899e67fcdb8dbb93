// Package notify publishes run lifecycle events to NATS.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/eventstore"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
)

// Notifier delivers run events to subscribers.
type Notifier interface {
	Notify(ctx context.Context, e eventstore.Event) error
	Close() error
}

// Message is the JSON envelope published for each event.
type Message struct {
	RunID     string          `json:"run_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// publisher is the subset of a NATS connection used to send messages.
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSNotifier publishes events on "<subject>.<event type>".
type NATSNotifier struct {
	conn    *nats.Conn
	pub     publisher
	subject string
}

// Subject returns the subject an event of eventType is published on.
func Subject(base, eventType string) string {
	return strings.TrimSuffix(base, ".") + "." + eventType
}

// NewNATSNotifier connects to cfg.NATSURL. When cfg.Stream is set, messages go through
// JetStream and the stream is created for "<subject>.>" if missing.
func NewNATSNotifier(ctx context.Context, cfg config.NotifyConfig) (*NATSNotifier, error) {
	if !cfg.Enabled() {
		return nil, errors.ConfigError("notifications are not configured").Build()
	}

	conn, err := nats.Connect(cfg.NATSURL, nats.Name("pagesdeploy"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", cfg.NATSURL).
			Build()
	}

	n := &NATSNotifier{conn: conn, pub: corePublisher{conn: conn}, subject: cfg.Subject}
	if cfg.Stream != "" {
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			return nil, errors.WrapError(err, errors.CategoryNetwork, "failed to create JetStream context").Build()
		}
		if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:        cfg.Stream,
			Description: "pagesdeploy run events",
			Subjects:    []string{Subject(cfg.Subject, ">")},
			MaxAge:      30 * 24 * time.Hour,
		}); err != nil {
			conn.Close()
			return nil, errors.WrapError(err, errors.CategoryNetwork, "failed to ensure JetStream stream").
				WithContext("stream", cfg.Stream).
				Build()
		}
		n.pub = jetStreamPublisher{js: js}
	}

	slog.Info("NATS notifications enabled", logfields.URL(cfg.NATSURL), slog.String("subject", cfg.Subject), slog.String("stream", cfg.Stream))
	return n, nil
}

// Notify publishes e. Delivery failures are returned, never retried.
func (n *NATSNotifier) Notify(ctx context.Context, e eventstore.Event) error {
	data, err := json.Marshal(Message{
		RunID:     e.RunID(),
		Type:      e.Type(),
		Timestamp: e.Timestamp(),
		Payload:   json.RawMessage(e.Payload()),
	})
	if err != nil {
		return errors.InternalError("failed to marshal notification").WithCause(err).Build()
	}

	subject := Subject(n.subject, e.Type())
	if err := n.pub.Publish(ctx, subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "failed to publish notification").
			WithContext("subject", subject).
			Build()
	}
	slog.Debug("Published run notification", slog.String("subject", subject), logfields.RunID(e.RunID()))
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

type corePublisher struct{ conn *nats.Conn }

func (p corePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := p.conn.Publish(subject, data); err != nil {
		return err
	}
	// FlushWithContext refuses contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return p.conn.FlushWithContext(ctx)
}

type jetStreamPublisher struct{ js jetstream.JetStream }

func (p jetStreamPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.js.Publish(ctx, subject, data)
	return err
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, eventstore.Event) error { return nil }
func (Nop) Close() error                                   { return nil }

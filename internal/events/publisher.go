// Package events publishes intake notifications to NATS for downstream consumers
// (CRM sync, analytics). Publishing is best effort and never affects the HTTP response.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	SubjectAppointmentSubmitted = "intake.appointment.submitted"
	SubjectNewsletterSubscribed = "intake.newsletter.subscribed"
)

// IntakeEvent is the payload published after a submission is dispatched.
// Contact details are masked.
type IntakeEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	RequestID   string    `json:"request_id,omitempty"`
	Treatment   string    `json:"treatment,omitempty"`
	Location    string    `json:"location,omitempty"`
	HasEmail    bool      `json:"has_email"`
	EmailMasked string    `json:"email_masked,omitempty"`
	PhoneMasked string    `json:"phone_masked,omitempty"`
	EmailsSent  int       `json:"emails_sent"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewIntakeEvent stamps an event with an id and time
func NewIntakeEvent(subject string) *IntakeEvent {
	return &IntakeEvent{
		ID:         uuid.New().String(),
		Type:       subject,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher publishes intake events
type Publisher interface {
	Publish(ctx context.Context, event *IntakeEvent) error
}

// NATSPublisher publishes over a core NATS connection
type NATSPublisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// Connect dials NATS with reconnect settings suited to a long-running service
func Connect(url string, maxReconnects int, reconnectWait time.Duration, logger *logrus.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("component", "nats")

	if maxReconnects == 0 {
		maxReconnects = -1
	}

	opts := []nats.Option{
		nats.Name("intake-service"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.Timeout(10 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				entry.WithError(err).Warn("Disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			entry.WithField("url", nc.ConnectedUrl()).Info("Reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			entry.Info("Connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			entry.WithError(err).Error("NATS error")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	entry.WithField("url", url).Info("Connected to NATS")
	return &NATSPublisher{conn: conn, logger: entry}, nil
}

// Publish encodes the event and publishes it on the subject named by its Type
func (p *NATSPublisher) Publish(ctx context.Context, event *IntakeEvent) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal intake event: %w", err)
	}
	if err := p.conn.Publish(event.Type, data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// IsConnected reports the connection state for readiness checks
func (p *NATSPublisher) IsConnected() bool {
	return p != nil && p.conn != nil && p.conn.IsConnected()
}

// Close drains pending publishes and closes the connection
func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.WithError(err).Warn("Failed to drain NATS connection")
		p.conn.Close()
	}
}

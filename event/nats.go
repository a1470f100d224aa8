package event

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the root of the engine's NATS subject hierarchy.
const DefaultSubjectPrefix = "sprawl.events"

// Envelope is the wire format for published events: the kind discriminator
// plus the variant payload.
type Envelope struct {
	Kind      Kind            `json:"kind"`
	Timestamp string          `json:"timestamp"` // RFC3339
	Payload   json.RawMessage `json:"payload"`
}

// NATSPublisher publishes engine events to NATS subjects of the form
// "<prefix>.<kind>" for remote consumers. Publishing is enabled only when
// a connection is provided; a nil connection turns the publisher into a
// no-op, so callers can wire it unconditionally.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher creates a publisher. A nil conn disables publishing.
// An empty prefix falls back to DefaultSubjectPrefix.
func NewNATSPublisher(nc *nats.Conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{
		nc:     nc,
		prefix: prefix,
		logger: logger.With("component", "nats-publisher"),
	}
}

// Publish implements Sink. Failures are logged, never propagated; event
// delivery is fire-and-forget.
func (p *NATSPublisher) Publish(ev Event) {
	if p == nil || p.nc == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("Failed to marshal event payload", "kind", ev.Kind(), "error", err)
		return
	}

	data, err := json.Marshal(Envelope{
		Kind:      ev.Kind(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		p.logger.Error("Failed to marshal event envelope", "kind", ev.Kind(), "error", err)
		return
	}

	subject := p.prefix + "." + subjectToken(ev.Kind())
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish event to NATS", "subject", subject, "error", err)
	}
}

// subjectToken lowers an event kind into a NATS subject token.
func subjectToken(k Kind) string {
	return strings.ToLower(string(k))
}

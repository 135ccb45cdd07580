package attemptlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/MrWong99/learnchars/internal/assessment"
)

// DefaultSubjectPrefix is used when no subject prefix is configured.
const DefaultSubjectPrefix = "learnchars.attempts"

// Publisher is the subset of [nats.Conn] used by NATSPublisher.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSPublisher publishes each record as JSON on "<prefix>.<tier>".
type NATSPublisher struct {
	pub    Publisher
	prefix string
	conn   *nats.Conn
}

var _ assessment.ResultSink = (*NATSPublisher)(nil)

// NewNATSPublisher wraps pub. An empty prefix selects DefaultSubjectPrefix.
func NewNATSPublisher(pub Publisher, prefix string) *NATSPublisher {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{pub: pub, prefix: prefix}
}

// ConnectNATS dials url and returns a publisher that owns the connection.
func ConnectNATS(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("learnchars"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("attemptlog: connect nats: %w", err)
	}
	p := NewNATSPublisher(conn, prefix)
	p.conn = conn
	return p, nil
}

// Subject returns the subject a record for tier is published on.
func (p *NATSPublisher) Subject(tier string) string {
	if tier == "" {
		tier = "unknown"
	}
	return p.prefix + "." + tier
}

// Record implements assessment.ResultSink.
func (p *NATSPublisher) Record(ctx context.Context, rec assessment.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("attemptlog: marshal %s: %w", rec.AttemptID, err)
	}
	subj := p.Subject(rec.Tier)
	if err := p.pub.Publish(subj, data); err != nil {
		return fmt.Errorf("attemptlog: publish %s: %w", subj, err)
	}
	return nil
}

// Healthy reports whether the owned connection is up. Publishers built with
// NewNATSPublisher always report true.
func (p *NATSPublisher) Healthy() bool {
	return p.conn == nil || p.conn.Status() == nats.CONNECTED
}

// Close drains the owned connection, if any.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

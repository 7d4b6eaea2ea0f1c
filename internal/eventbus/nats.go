// Package eventbus mirrors the in-process event bus onto NATS so overlays and
// other consumers outside the process can follow the show.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/friendsincode/tokencast/internal/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	// Receive republishes events from other nodes onto the local bus.
	Receive       bool
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "tokencast.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSMirror forwards local events to NATS subjects of the form
// <prefix>.<event_type>.
type NATSMirror struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	bus    *events.Bus
	prefix string
	nodeID string
	logger zerolog.Logger
}

// natsMessage represents a message published to NATS.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

// NewNATSMirror connects to NATS and attaches itself to bus as a sink.
func NewNATSMirror(cfg NATSConfig, bus *events.Bus, logger zerolog.Logger) (*NATSMirror, error) {
	logger = logger.With().Str("component", "nats_mirror").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.Name("tokencast"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	m := newMirror(cfg.SubjectPrefix, bus, logger)
	m.conn = conn

	if cfg.Receive {
		sub, err := conn.Subscribe(m.prefix+".>", func(msg *nats.Msg) {
			m.handle(msg.Data)
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribe nats: %w", err)
		}
		m.sub = sub
	}

	bus.AddSink(m)
	logger.Info().Str("url", cfg.URL).Str("prefix", m.prefix).Msg("nats event mirror connected")
	return m, nil
}

func newMirror(prefix string, bus *events.Bus, logger zerolog.Logger) *NATSMirror {
	if prefix == "" {
		prefix = DefaultNATSConfig().SubjectPrefix
	}
	return &NATSMirror{
		bus:    bus,
		prefix: strings.TrimSuffix(prefix, "."),
		nodeID: generateNodeID(),
		logger: logger,
	}
}

// Subject returns the NATS subject for an event type.
func (m *NATSMirror) Subject(eventType events.EventType) string {
	return m.prefix + "." + string(eventType)
}

// Forward implements events.Sink.
func (m *NATSMirror) Forward(eventType events.EventType, payload events.Payload) {
	if m.conn == nil {
		return
	}
	data, err := m.marshal(eventType, payload)
	if err != nil {
		m.logger.Warn().Err(err).Str("event", string(eventType)).Msg("encode event for nats")
		return
	}
	// nats.Conn.Publish buffers and returns without waiting on the server.
	if err := m.conn.Publish(m.Subject(eventType), data); err != nil {
		m.logger.Warn().Err(err).Str("event", string(eventType)).Msg("publish event to nats")
	}
}

func (m *NATSMirror) handle(data []byte) {
	msg, err := unmarshalNATSMessage(data)
	if err != nil {
		m.logger.Debug().Err(err).Msg("drop malformed nats message")
		return
	}
	if msg.NodeID == m.nodeID {
		return
	}
	m.bus.PublishLocal(msg.EventType, msg.Payload)
}

// Close drains the subscription and closes the connection.
func (m *NATSMirror) Close() error {
	if m.conn == nil {
		return nil
	}
	if m.sub != nil {
		_ = m.sub.Unsubscribe()
	}
	if err := m.conn.Drain(); err != nil {
		m.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

func (m *NATSMirror) marshal(eventType events.EventType, payload events.Payload) ([]byte, error) {
	return json.Marshal(natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    m.nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalNATSMessage(data []byte) (*natsMessage, error) {
	var msg natsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("nats message missing event type")
	}
	return &msg, nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}

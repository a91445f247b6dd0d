package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	DefaultStream        = "BRIDGE_EVENTS"
	DefaultSubjects      = "bridge.>"
	defaultNATSTimeout   = 10 * time.Second
	defaultReconnectWait = 5 * time.Second
)

// NATSOptions configures the NATS publisher.
type NATSOptions struct {
	URL           string
	Timeout       time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
	JetStream     bool
	Stream        string
	MaxAge        time.Duration

	// OnDisconnect and OnReconnect observe connection state changes.
	OnDisconnect func(err error)
	OnReconnect  func()
}

// NATSPublisher publishes committed events as JSON on ev.Subject().
type NATSPublisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

func NewNATSPublisher(opts NATSOptions) (*NATSPublisher, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("nats url is empty")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultNATSTimeout
	}
	wait := opts.ReconnectWait
	if wait <= 0 {
		wait = defaultReconnectWait
	}
	maxReconnects := opts.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1
	}
	log.Printf("🔌 Connecting to NATS %s (timeout %v)", opts.URL, timeout)

	conn, err := nats.Connect(opts.URL,
		nats.Name("bridged"),
		nats.Timeout(timeout),
		nats.ReconnectWait(wait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ NATS reconnected to %s", nc.ConnectedUrl())
			if opts.OnReconnect != nil {
				opts.OnReconnect()
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if opts.OnReconnect != nil {
		opts.OnReconnect()
	}

	p := &NATSPublisher{conn: conn}
	if !opts.JetStream {
		return p, nil
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	p.js = js
	if err := p.ensureStream(opts.Stream, opts.MaxAge); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *NATSPublisher) ensureStream(name string, maxAge time.Duration) error {
	if name == "" {
		name = DefaultStream
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if _, err := p.js.StreamInfo(name); err == nil {
		log.Printf("Stream %s already exists", name)
		return nil
	}
	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{DefaultSubjects},
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAge,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	log.Printf("✅ Stream %s created", name)
	return nil
}

// Publish sends ev. With JetStream enabled the call waits for the stream ack.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", ev.Name, err)
	}
	subject := ev.Subject()
	if p.js != nil {
		if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to publish %s: %w", subject, err)
		}
		return nil
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers decoded events matching subject until the returned
// subscription is drained or the publisher closed.
func (p *NATSPublisher) Subscribe(subject string, handler func(Event)) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubjects
	}
	return p.conn.Subscribe(subject, func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("❌ [NATS] undecodable event on %s: %v", msg.Subject, err)
			return
		}
		handler(ev)
	})
}

func (p *NATSPublisher) Connected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

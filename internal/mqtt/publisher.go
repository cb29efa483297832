// Package mqtt publishes simulation ticks to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"microgrid_simulator/internal/logger"
	"microgrid_simulator/internal/model"
	"microgrid_simulator/internal/simulator"
)

// ErrClosed is returned when publishing after Close.
var ErrClosed = errors.New("publisher closed")

// Config defines the broker connection and publishing behaviour.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
	Retain      bool   `json:"retain"`
	MaxRetries  int    `json:"max_retries"`
	BackoffMS   int    `json:"backoff_ms"`
	QueueSize   int    `json:"queue_size"`
}

func (c Config) withDefaults() Config {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "microgrid"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

// Client is the subset of the Paho client used by the publisher.
type Client interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) Client {
	return paho.NewClient(opts)
}

// NewClientOptions builds paho client options from Config.
func NewClientOptions(cfg Config) *paho.ClientOptions {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	return opts
}

type message struct {
	topic   string
	payload []byte
}

// Publisher queues messages and publishes them from a single worker so a
// slow broker never stalls the simulation tick.
type Publisher struct {
	cli Client
	cfg Config
	log logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan message
	done   chan struct{}

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewPublisher connects to the broker and starts the publish worker.
func NewPublisher(cfg Config, log logger.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	opts := NewClientOptions(cfg)
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(paho.Client, *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, token.Error())
	}
	return newPublisher(cli, cfg, log), nil
}

func newPublisher(cli Client, cfg Config, log logger.Logger) *Publisher {
	cfg = cfg.withDefaults()
	p := &Publisher{
		cli:   cli,
		cfg:   cfg,
		log:   log,
		queue: make(chan message, cfg.QueueSize),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

// Topic returns the topic for a session channel, e.g. microgrid/<id>/snapshot.
func (p *Publisher) Topic(session, channel string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, session, channel)
}

// Enqueue marshals payload and queues it for publishing. When the queue is
// full the message is dropped.
func (p *Publisher) Enqueue(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- message{topic: topic, payload: data}:
	default:
		p.dropped.Add(1)
		p.log.Warnf("publish queue full, dropping message for %s", topic)
	}
	return nil
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.publish(msg); err != nil {
			p.failed.Add(1)
			p.log.Errorf("publish %s: %v", msg.topic, err)
			continue
		}
		p.published.Add(1)
	}
}

// publish retries with exponential backoff.
func (p *Publisher) publish(msg message) error {
	backoff := time.Duration(p.cfg.BackoffMS) * time.Millisecond
	var err error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(msg.topic, p.cfg.QoS, p.cfg.Retain, msg.payload)
		token.Wait()
		if err = token.Error(); err == nil {
			return nil
		}
		p.log.Warnf("publish attempt %d to %s failed: %v", attempt+1, msg.topic, err)
		if attempt < p.cfg.MaxRetries {
			time.Sleep(backoff * time.Duration(1<<attempt))
		}
	}
	return err
}

// Close stops accepting messages, drains the queue and disconnects.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	if p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

// Stats reports publish outcomes since start.
func (p *Publisher) Stats() (published, failed, dropped int64) {
	return p.published.Load(), p.failed.Load(), p.dropped.Load()
}

// ForSession returns a callback publishing one session's ticks.
func (p *Publisher) ForSession(id string) simulator.Callback {
	return &sessionPublisher{p: p, session: id}
}

type SnapshotMessage struct {
	Session  string         `json:"session"`
	Hour     int            `json:"hour"`
	Snapshot model.Snapshot `json:"snapshot"`
}

type DecisionMessage struct {
	Session  string         `json:"session"`
	Hour     int            `json:"hour"`
	Decision model.Decision `json:"decision"`
	Rules    []string       `json:"rules"`
}

type StateMessage struct {
	Session string          `json:"session"`
	State   simulator.State `json:"state"`
}

type sessionPublisher struct {
	p       *Publisher
	session string
}

func (s *sessionPublisher) OnTick(t simulator.Tick) {
	s.enqueue("snapshot", SnapshotMessage{Session: s.session, Hour: t.Hour, Snapshot: t.Snapshot})
	if t.Snapshot.Decision != nil {
		rules := t.Rules
		if rules == nil {
			rules = []string{}
		}
		s.enqueue("decision", DecisionMessage{Session: s.session, Hour: t.Hour, Decision: *t.Snapshot.Decision, Rules: rules})
	}
}

func (s *sessionPublisher) OnState(st simulator.State) {
	s.enqueue("state", StateMessage{Session: s.session, State: st})
}

func (s *sessionPublisher) OnSummary(simulator.Summary) {}

func (s *sessionPublisher) OnReset(_ simulator.State, snap model.Snapshot) {
	s.enqueue("snapshot", SnapshotMessage{Session: s.session, Snapshot: snap})
}

func (s *sessionPublisher) enqueue(channel string, payload any) {
	if err := s.p.Enqueue(s.p.Topic(s.session, channel), payload); err != nil && !errors.Is(err, ErrClosed) {
		s.p.log.Errorf("%v", err)
	}
}

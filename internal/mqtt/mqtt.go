// Package mqtt receives raw station telemetry from the broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	"cosmoz-server/internal/config"
	"cosmoz-server/internal/metrics"
)

// ErrStopped is returned by Connect after Disconnect.
var ErrStopped = errors.New("mqtt: subscriber stopped")

// Handler consumes one validated telemetry message.
type Handler func(ctx context.Context, t Telemetry) error

type Subscriber struct {
	client    paho.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	handler Handler
	// ctx bounds handler calls; set by Serve.
	ctx context.Context
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{
		cfg:    cfg,
		logger: logger.With("component", "mqtt"),
		stopCh: make(chan struct{}),
		ctx:    context.Background(),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Resubscribe on every (re)connect; the session is clean.
	opts.SetOnConnectHandler(func(_ paho.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		if err := s.subscribe(); err != nil {
			s.logger.Error("mqtt subscribe failed", "topic", cfg.MQTTTopic, "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = paho.NewClient(opts)
	return s
}

// SetMessageHandler must be called before Connect.
func (s *Subscriber) SetMessageHandler(h Handler) {
	s.handler = h
}

// Connect establishes the broker connection. Subscription happens in the
// connect callback.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return ErrStopped
		default:
		}
	}
}

// Serve connects and blocks until ctx ends, then disconnects.
func (s *Subscriber) Serve(ctx context.Context) error {
	s.ctx = ctx
	if err := s.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Disconnect()
	return ctx.Err()
}

func (s *Subscriber) String() string { return "mqtt-ingest" }

func (s *Subscriber) subscribe() error {
	topic := s.cfg.MQTTTopic
	qos := byte(1)

	token := s.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	var t Telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		metrics.TelemetryIngested.WithLabelValues("invalid").Inc()
		s.logger.Warn("failed to parse telemetry message", "topic", topic, "error", err)
		return
	}
	if err := validateTelemetry(t); err != nil {
		metrics.TelemetryIngested.WithLabelValues("invalid").Inc()
		s.logger.Warn("invalid telemetry message", "topic", topic, "site_no", t.SiteNo, "error", err)
		return
	}

	if s.handler == nil {
		return
	}
	if err := s.handler(s.ctx, t); err != nil {
		metrics.TelemetryIngested.WithLabelValues("failed").Inc()
		s.logger.Error("telemetry handler failed", "topic", topic, "site_no", t.SiteNo, "error", err)
		return
	}
	metrics.TelemetryIngested.WithLabelValues("stored").Inc()
	s.logger.Debug("processed telemetry message", "site_no", t.SiteNo, "timestamp", t.Timestamp)
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect is idempotent.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

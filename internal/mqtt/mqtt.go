package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"wxstats/internal/config"
)

const (
	qosAtLeastOnce = byte(1)
	publishTimeout = 5 * time.Second
	connectPoll    = 200 * time.Millisecond
)

var errStopped = errors.New("publisher stopped")

// Notifier announces finished pipeline runs.
type Notifier interface {
	PublishSummary(ctx context.Context, run string, summary any) error
	Close()
}

// NewNotifier returns an MQTT publisher when a broker is configured and a
// no-op notifier otherwise.
func NewNotifier(cfg config.MQTTConfig, logger *slog.Logger) Notifier {
	if !cfg.Enabled() {
		return Noop{}
	}
	return NewPublisher(cfg, logger)
}

// Noop discards every summary.
type Noop struct{}

func (Noop) PublishSummary(context.Context, string, any) error { return nil }
func (Noop) Close()                                              {}

// Publisher sends run summaries as JSON to <topic>/<run>.
type Publisher struct {
	client    mqtt.Client
	cfg       config.MQTTConfig
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPublisher(cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	p := newPublisher(nil, cfg, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	// A batch run publishes once; it must not hang on an absent broker.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(publishTimeout)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("mqtt connected", "broker", cfg.Broker, "port", cfg.Port)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	return p
}

func newPublisher(client mqtt.Client, cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// brokerURL accepts either a bare host or a full scheme://host[:port] URL.
func brokerURL(cfg config.MQTTConfig) string {
	if strings.Contains(cfg.Broker, "://") {
		return cfg.Broker
	}
	return fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
}

// Connect waits for the broker connection while honoring ctx and Close.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return errStopped
	default:
	}
	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	for {
		if token.WaitTimeout(connectPoll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			p.setConnected(true)
			return nil
		}
		select {
		case <-ctx.Done():
			p.client.Disconnect(0)
			return ctx.Err()
		case <-p.stopCh:
			p.client.Disconnect(0)
			return errStopped
		default:
		}
	}
}

// PublishSummary connects if needed and publishes summary to <topic>/<run>
// with QoS 1, not retained.
func (p *Publisher) PublishSummary(ctx context.Context, run string, summary any) error {
	if err := p.Connect(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal %s summary: %w", run, err)
	}

	topic := p.cfg.Topic + "/" + run
	token := p.client.Publish(topic, qosAtLeastOnce, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.logger.Debug("published run summary", "topic", topic, "size", len(data))
	return nil
}

// IsConnected returns whether the client is connected.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Close stops the publisher and disconnects. Safe to call more than once.
func (p *Publisher) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.client != nil && p.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("mqtt disconnected")
	}
	p.setConnected(false)
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

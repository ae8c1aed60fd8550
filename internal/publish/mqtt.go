package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/stopweather/internal/config"
	"github.com/i474232898/stopweather/internal/failure"
	"github.com/i474232898/stopweather/internal/weather"
)

const publishTimeout = 5 * time.Second

// MQTT publishes every observation as JSON on <prefix>/stops/<stop_id>/weather.
type MQTT struct {
	client    mqtt.Client
	prefix    string
	qos       byte
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Message is the payload sent for one observation.
type Message struct {
	StopID      int64               `json:"stop_id"`
	Stop        string              `json:"stop"`
	Latitude    float64             `json:"latitude"`
	Longitude   float64             `json:"longitude"`
	Observation weather.Observation `json:"observation"`
}

func NewMQTT(cfg config.MQTTConfig, logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MQTT{
		prefix: strings.Trim(cfg.TopicPrefix, "/"),
		qos:    cfg.QoS,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		m.setConnected(true)
		logger.Info("mqtt connected", "broker", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	m.client = mqtt.NewClient(opts)
	return m
}

func (m *MQTT) Name() string { return "mqtt" }

// Connect waits for the first connection, honouring ctx and Close.
func (m *MQTT) Connect(ctx context.Context) error {
	select {
	case <-m.stopCh:
		return fmt.Errorf("mqtt publisher closed")
	default:
	}
	if m.IsConnected() {
		return nil
	}

	token := m.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return failure.New(failure.Network, "mqtt connect", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			m.client.Disconnect(0)
			return ctx.Err()
		case <-m.stopCh:
			m.client.Disconnect(0)
			return fmt.Errorf("mqtt publisher closed")
		default:
		}
	}
}

// Topic returns the topic observations of a stop are published on.
func (m *MQTT) Topic(stopID int64) string {
	return fmt.Sprintf("%s/stops/%d/weather", m.prefix, stopID)
}

func (m *MQTT) Publish(ctx context.Context, loc weather.Location, obs weather.Observation) error {
	if !m.IsConnected() {
		return failure.Newf(failure.Network, "mqtt publish", "client not connected")
	}

	data, err := json.Marshal(Message{
		StopID:      loc.StopID,
		Stop:        loc.Label(),
		Latitude:    loc.Latitude,
		Longitude:   loc.Longitude,
		Observation: obs,
	})
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}

	topic := m.Topic(loc.StopID)
	token := m.client.Publish(topic, m.qos, false, data)

	wait := publishTimeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < wait {
		wait = time.Until(dl)
	}
	if !token.WaitTimeout(wait) {
		return failure.Newf(failure.Network, "mqtt publish", "timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return failure.New(failure.Network, "mqtt publish", err)
	}

	m.logger.Debug("published observation", "topic", topic, "provider", obs.Provider)
	return nil
}

func (m *MQTT) IsConnected() bool {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	return connected && m.client.IsConnected()
}

// Close disconnects; safe to call more than once.
func (m *MQTT) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.client != nil {
		m.client.Disconnect(250)
	}
	m.setConnected(false)
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

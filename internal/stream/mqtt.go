// Package stream publishes playback frames to an MQTT broker so external
// consumers (robot arms, dashboards) can follow a session's predicted pose.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"armpose/internal/config"
	"armpose/internal/playback"
)

// SinkName identifies MQTT publications in logs and metrics
const SinkName = "mqtt"

// Client is the part of mqtt.Client the sink uses
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Sink publishes every playback frame as JSON to <prefix>/<session>/frame
type Sink struct {
	client Client
	cfg    config.MQTTConfig
	logger *slog.Logger
}

// Connect dials the configured broker and returns a ready sink
func Connect(cfg config.MQTTConfig, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "mqtt"))

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "armpose"
	}
	// Brokers drop the older connection on a duplicate client ID.
	clientID = clientID + "-" + uuid.NewString()[:8]

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("Connected to MQTT broker", slog.String("broker", cfg.Broker))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", slog.String("error", err.Error()))
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out after %s", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	return NewSink(client, cfg, logger), nil
}

// NewSink wraps an already connected client
func NewSink(client Client, cfg config.MQTTConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Sink{client: client, cfg: cfg, logger: logger}
}

// Name implements playback.Sink
func (s *Sink) Name() string { return SinkName }

// Topic returns the frame topic for a session
func (s *Sink) Topic(sessionID string) string {
	prefix := strings.TrimSuffix(s.cfg.TopicPrefix, "/")
	if prefix == "" {
		return sessionID + "/frame"
	}
	return prefix + "/" + sessionID + "/frame"
}

// PublishFrame implements playback.Sink. It waits for the broker
// acknowledgement, bounded by the configured timeout and ctx.
func (s *Sink) PublishFrame(ctx context.Context, f playback.Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", f.Index, err)
	}

	topic := s.Topic(f.SessionID)
	token := s.client.Publish(topic, s.cfg.QoS, s.cfg.Retained, payload)

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish %s: timed out after %s", topic, s.cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	s.logger.Debug("Frame published",
		slog.String("topic", topic),
		slog.Int("frame", f.Index))
	return nil
}

// Close disconnects, giving in-flight messages a short grace period
func (s *Sink) Close() {
	s.client.Disconnect(250)
}

var _ playback.Sink = (*Sink)(nil)

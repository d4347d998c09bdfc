// Package emitter publishes pipeline snapshots and phase events to an
// MQTT broker: msgpack for the per-tick snapshot stream, JSON for the
// low-rate event topic.
package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/wayfinder/internal/core"
	"github.com/e7canasta/wayfinder/internal/phase"
)

// Config holds broker settings.
type Config struct {
	Broker         string
	ClientID       string
	SnapshotsTopic string
	EventsTopic    string
	SnapshotQoS    byte
	EventQoS       byte
}

// Emitter is an MQTT presentation sink and phase listener.
type Emitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// Stats contains emitter counters.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// New creates an emitter; call Connect before use.
func New(cfg Config) *Emitter {
	return &Emitter{cfg: cfg, published: make(map[string]uint64)}
}

// Connect establishes the broker connection with auto-reconnect.
func (e *Emitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("mqtt connection established", "broker", e.cfg.Broker, "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", e.cfg.Broker)
	}

	e.client = mqtt.NewClient(opts)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// Publish implements core.PresentationSink. Snapshots are fire and
// forget: the per-frame tick must never block on broker latency.
func (e *Emitter) Publish(s core.Snapshot) {
	if !e.isConnected() {
		e.countError()
		return
	}

	payload, err := msgpack.Marshal(s)
	if err != nil {
		e.countError()
		slog.Error("snapshot marshal failed", "error", err)
		return
	}

	e.client.Publish(e.cfg.SnapshotsTopic, e.cfg.SnapshotQoS, false, payload)
	e.countPublished(e.cfg.SnapshotsTopic)
}

// phaseEvent is the JSON payload on the events topic.
type phaseEvent struct {
	From      phase.Phase `json:"from"`
	To        phase.Phase `json:"to"`
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
}

// PhaseChanged implements core.PhaseListener. Events are rare, so the
// publish is confirmed with a short wait.
func (e *Emitter) PhaseChanged(prev, next phase.Phase, seq uint64) {
	if !e.isConnected() {
		e.countError()
		return
	}

	payload, err := json.Marshal(phaseEvent{From: prev, To: next, Seq: seq, Timestamp: time.Now()})
	if err != nil {
		e.countError()
		return
	}

	token := e.client.Publish(e.cfg.EventsTopic, e.cfg.EventQoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		slog.Warn("phase event publish timeout", "topic", e.cfg.EventsTopic)
		return
	}
	if err := token.Error(); err != nil {
		e.countError()
		slog.Warn("phase event publish failed", "error", err)
		return
	}
	e.countPublished(e.cfg.EventsTopic)
}

// Disconnect closes the broker connection.
func (e *Emitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
}

// Stats returns a copy of the counters.
func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Connected: e.connected, Published: published, Errors: e.errors}
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) countPublished(topic string) {
	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
}

func (e *Emitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

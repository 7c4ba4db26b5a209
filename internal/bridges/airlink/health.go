package airlink

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthReporter manages periodic health status reporting.
// It publishes retained health messages to MQTT at regular intervals.
type HealthReporter struct {
	bridge     string
	version    string
	topic      string
	startTime  time.Time
	interval   time.Duration
	publisher  HealthPublisher
	modem      Connector
	relayStats func() RelayStats

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Bridge is the bridge name reported in health messages.
	Bridge string

	// Version is the bridge software version.
	Version string

	// Topic is where health messages are published.
	Topic string

	// Interval is how often to publish health status.
	// 0 disables periodic reporting; starting and stopping are still published.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Modem provides connection statistics.
	Modem Connector

	// RelayStats provides relay counters. Optional.
	RelayStats func() RelayStats
}

// NewHealthReporter creates a new health reporter.
// Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	return &HealthReporter{
		bridge:     cfg.Bridge,
		version:    cfg.Version,
		topic:      cfg.Topic,
		startTime:  time.Now(),
		interval:   cfg.Interval,
		publisher:  cfg.Publisher,
		modem:      cfg.Modem,
		relayStats: cfg.RelayStats,
		done:       make(chan struct{}),
	}
}

// Start publishes the current status and, if an interval is set, begins
// periodic reporting until Stop or ctx cancellation.
func (h *HealthReporter) Start(ctx context.Context) {
	if h.interval <= 0 {
		if err := h.PublishNow(); err != nil {
			h.logError("failed to publish initial health", err)
		}
		return
	}

	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop stops reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	if h.modem == nil {
		return HealthDegraded, "modem disconnected"
	}
	stats := h.modem.Stats()
	switch {
	case stats.Connected:
		return HealthHealthy, ""
	case stats.Reconnecting:
		return HealthDegraded, "modem reconnecting"
	default:
		return HealthDegraded, "modem disconnected"
	}
}

// buildMessage assembles a health message for status.
func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	var (
		modemStats ClientStats
		address    string
		relay      RelayStats
	)
	if h.modem != nil {
		modemStats = h.modem.Stats()
		address = h.modem.Address()
	}
	if h.relayStats != nil {
		relay = h.relayStats()
	}

	msg := NewHealthMessage(h.bridge, h.version, status, relay, modemStats, address, h.startTime)
	msg.Reason = reason
	return msg
}

// publishStatus publishes a retained health status message.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		return err
	}

	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

package airlink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Bridge operation constants.
const (
	// defaultSendTimeout bounds one outbound send to the modem.
	defaultSendTimeout = 5 * time.Second

	// recordTimeout bounds one Recorder call.
	recordTimeout = 2 * time.Second

	// bridgeName identifies this bridge in health messages.
	bridgeName = "airlink"
)

// Bridge relays SMS between the modem and MQTT.
// It handles:
//   - Publishing inbound SMS from the modem to <prefix>/message/receive
//   - Forwarding requests on <prefix>/message/send to the modem
//   - Health reporting and graceful shutdown
//
// The bridge holds no per-message state; every failure is logged, counted
// and dropped.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	prefix           string
	qos              byte
	includeTimestamp bool
	sendTimeout      time.Duration

	mqtt     MQTTClient
	modem    Connector
	health   *HealthReporter
	recorder Recorder

	// Statistics
	inboundPublished  atomic.Uint64
	inboundFailed     atomic.Uint64
	outboundSent      atomic.Uint64
	outboundFailed    atomic.Uint64
	outboundDiscarded atomic.Uint64

	// Shutdown coordination. Handlers hold stopMu.RLock while registering
	// with inflight so Stop cannot miss one.
	stopMu    sync.RWMutex
	stopped   bool
	inflight  sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	logger   Logger
	loggerMu sync.RWMutex
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Recorder receives every relay outcome. It is optional.
type Recorder interface {
	RecordRelay(ctx context.Context, rec RelayRecord) error
}

// RelayStats counts relay outcomes.
type RelayStats struct {
	InboundPublished  uint64
	InboundFailed     uint64
	OutboundSent      uint64
	OutboundFailed    uint64
	OutboundDiscarded uint64
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// TopicPrefix is the MQTT topic prefix, e.g. "airlink".
	TopicPrefix string

	// QoS is used for subscriptions and inbound publishes.
	QoS byte

	// IncludeTimestamp adds received_at to inbound payloads.
	IncludeTimestamp bool

	// SendTimeout bounds one outbound send. Default: 5 seconds.
	SendTimeout time.Duration

	// HealthInterval is the health publish period. 0 disables periodic reports.
	HealthInterval time.Duration

	// Version is reported in health messages.
	Version string

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Modem is the modem connection.
	Modem Connector

	// Recorder is optional. If nil, outcomes are not recorded.
	Recorder Recorder

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.TopicPrefix == "" {
		return nil, fmt.Errorf("topic prefix is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Modem == nil {
		return nil, fmt.Errorf("modem client is required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("invalid QoS %d", opts.QoS)
	}

	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		prefix:           opts.TopicPrefix,
		qos:              opts.QoS,
		includeTimestamp: opts.IncludeTimestamp,
		sendTimeout:      sendTimeout,
		mqtt:             opts.MQTTClient,
		modem:            opts.Modem,
		recorder:         opts.Recorder,
		ctx:              ctx,
		ctxCancel:        ctxCancel,
		logger:           opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Bridge:     bridgeName,
		Version:    opts.Version,
		Topic:      HealthTopic(opts.TopicPrefix),
		Interval:   opts.HealthInterval,
		Publisher:  opts.MQTTClient,
		Modem:      opts.Modem,
		RelayStats: b.Stats,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to the send topic, installs the modem callback and
// starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.modem.SetOnMessage(b.handleInbound)

	sendTopic := SendTopic(b.prefix)
	if err := b.mqtt.Subscribe(sendTopic, b.qos, b.handleMQTTMessage); err != nil {
		b.modem.SetOnMessage(nil)
		return fmt.Errorf("subscribe to %s: %w", sendTopic, err)
	}
	b.logInfo("subscribed to send requests", "topic", sendTopic)

	b.health.Start(ctx)

	b.logInfo("bridge started",
		"receive_topic", ReceiveTopic(b.prefix),
		"send_topic", sendTopic,
		"modem", b.modem.Address())

	return nil
}

// Stop gracefully shuts down the bridge.
//
// In-flight sends are cancelled and running handlers are waited for.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()

		b.ctxCancel()

		b.modem.SetOnMessage(nil)
		if err := b.mqtt.Unsubscribe(SendTopic(b.prefix)); err != nil {
			b.logDebug("unsubscribe failed during stop", "error", err)
		}

		b.inflight.Wait()

		// Publishes "stopping" status
		b.health.Stop()

		b.logInfo("bridge stopped")
	})
}

// enter registers a handler run. It returns false once Stop has begun.
func (b *Bridge) enter() bool {
	b.stopMu.RLock()
	defer b.stopMu.RUnlock()
	if b.stopped {
		return false
	}
	b.inflight.Add(1)
	return true
}

// handleInbound publishes an SMS received by the modem.
func (b *Bridge) handleInbound(msg Message) {
	if !b.enter() {
		return
	}
	defer b.inflight.Done()

	payload, err := NewReceivePayload(msg, b.includeTimestamp)
	if err != nil {
		b.inboundFailed.Add(1)
		b.logError("failed to encode inbound SMS", err)
		b.record(DirectionInbound, OutcomeFailed, msg, err)
		return
	}

	topic := ReceiveTopic(b.prefix)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		b.inboundFailed.Add(1)
		b.logError("failed to publish inbound SMS", err)
		b.record(DirectionInbound, OutcomeFailed, msg, err)
		return
	}

	b.inboundPublished.Add(1)
	b.logDebug("published inbound SMS",
		"topic", topic,
		"phone_number", msg.PhoneNumber,
		"length", len(msg.Message))
	b.record(DirectionInbound, OutcomeRelayed, msg, nil)
}

// handleMQTTMessage forwards a send request to the modem.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	if !b.enter() {
		return
	}
	defer b.inflight.Done()

	if topic != SendTopic(b.prefix) {
		err := fmt.Errorf("%w: %s", ErrUnexpectedTopic, topic)
		b.outboundDiscarded.Add(1)
		b.logWarn("discarding message on unexpected topic", "topic", topic)
		b.record(DirectionOutbound, OutcomeDiscarded, Message{}, err)
		return
	}

	msg, err := ParseSendRequest(payload)
	if err != nil {
		b.outboundDiscarded.Add(1)
		b.logWarn("discarding invalid send request", "error", err)
		b.record(DirectionOutbound, OutcomeDiscarded, msg, err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.sendTimeout)
	defer cancel()

	if err := b.modem.Send(ctx, msg); err != nil {
		b.outboundFailed.Add(1)
		b.logError("failed to send SMS", err)
		b.record(DirectionOutbound, OutcomeFailed, msg, err)
		return
	}

	b.outboundSent.Add(1)
	b.logInfo("sent SMS", "phone_number", msg.PhoneNumber, "length", len(msg.Message))
	b.record(DirectionOutbound, OutcomeRelayed, msg, nil)
}

// record hands an outcome to the recorder, if one is configured.
func (b *Bridge) record(dir Direction, outcome Outcome, msg Message, err error) {
	if b.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	rec := RelayRecord{
		Direction: dir,
		Outcome:   outcome,
		Message:   msg,
		Err:       err,
		At:        time.Now(),
	}
	if rerr := b.recorder.RecordRelay(ctx, rec); rerr != nil && !errors.Is(rerr, context.Canceled) {
		b.logError("failed to record relay outcome", rerr)
	}
}

// Stats returns relay counters.
func (b *Bridge) Stats() RelayStats {
	return RelayStats{
		InboundPublished:  b.inboundPublished.Load(),
		InboundFailed:     b.inboundFailed.Load(),
		OutboundSent:      b.outboundSent.Load(),
		OutboundFailed:    b.outboundFailed.Load(),
		OutboundDiscarded: b.outboundDiscarded.Load(),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

package airlink

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message is a single SMS in either direction.
type Message struct {
	// PhoneNumber is the sender (inbound) or recipient (outbound).
	PhoneNumber string

	// Message is the SMS text.
	Message string

	// ReceivedAt is when the modem client received the SMS.
	// Zero for outbound messages.
	ReceivedAt time.Time
}

// SMSPayload is the JSON shape of both MQTT message topics.
type SMSPayload struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`

	// ReceivedAt is only set on inbound messages when timestamps are enabled.
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

// NewReceivePayload builds the JSON published for an inbound SMS.
func NewReceivePayload(m Message, includeTimestamp bool) ([]byte, error) {
	p := SMSPayload{
		PhoneNumber: m.PhoneNumber,
		Message:     m.Message,
	}
	if includeTimestamp && !m.ReceivedAt.IsZero() {
		ts := m.ReceivedAt.UTC()
		p.ReceivedAt = &ts
	}
	return json.Marshal(p)
}

// ParseSendRequest parses an outbound SMS request from an MQTT payload.
//
// Returns ErrInvalidPayload for malformed JSON or non-string fields and
// ErrMissingField when phone_number or message is absent or empty. Unknown
// fields are ignored.
func ParseSendRequest(payload []byte) (Message, error) {
	var p SMSPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Message{}, fmt.Errorf("%w: field %q must be a string", ErrInvalidPayload, typeErr.Field)
		}
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var missing []string
	if p.PhoneNumber == "" {
		missing = append(missing, "phone_number")
	}
	if p.Message == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return Message{}, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}

	return Message{PhoneNumber: p.PhoneNumber, Message: p.Message}, nil
}

// =============================================================================
// Topics
// =============================================================================

// ReceiveTopic returns the topic inbound SMS are published to.
func ReceiveTopic(prefix string) string {
	return prefix + "/message/receive"
}

// SendTopic returns the topic outbound SMS requests are read from.
func SendTopic(prefix string) string {
	return prefix + "/message/send"
}

// HealthTopic returns the topic for bridge health reports.
func HealthTopic(prefix string) string {
	return prefix + "/health"
}

// =============================================================================
// Relay outcomes
// =============================================================================

// Direction says which way a message travelled through the relay.
type Direction string

const (
	// DirectionInbound is modem to MQTT.
	DirectionInbound Direction = "inbound"

	// DirectionOutbound is MQTT to modem.
	DirectionOutbound Direction = "outbound"
)

// Outcome is what happened to a relayed message.
type Outcome string

const (
	// OutcomeRelayed means the message was published or sent.
	OutcomeRelayed Outcome = "relayed"

	// OutcomeFailed means the publish or send failed.
	OutcomeFailed Outcome = "failed"

	// OutcomeDiscarded means the request was rejected before sending.
	OutcomeDiscarded Outcome = "discarded"
)

// RelayRecord describes one relay outcome, for journaling and metrics.
type RelayRecord struct {
	Direction Direction
	Outcome   Outcome
	Message   Message
	Err       error
	At        time.Time
}

// =============================================================================
// Health
// =============================================================================

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the broker or modem is unavailable.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained to the health topic.
type HealthMessage struct {
	Bridge        string            `json:"bridge"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Connection    *ConnectionStatus `json:"connection,omitempty"`
	Statistics    *BridgeStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}

// ConnectionStatus describes the modem connection.
type ConnectionStatus struct {
	// Status is "connected", "reconnecting" or "disconnected".
	Status       string     `json:"status"`
	Address      string     `json:"address,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// BridgeStatistics contains relay and modem counters.
type BridgeStatistics struct {
	InboundPublished  uint64 `json:"inbound_published"`
	InboundFailed     uint64 `json:"inbound_failed"`
	OutboundSent      uint64 `json:"outbound_sent"`
	OutboundFailed    uint64 `json:"outbound_failed"`
	OutboundDiscarded uint64 `json:"outbound_discarded"`
	ModemReceived     uint64 `json:"modem_received"`
	ModemDropped      uint64 `json:"modem_dropped"`
	DecodeErrors      uint64 `json:"decode_errors"`
	Errors            uint64 `json:"errors"`
	Reconnects        uint64 `json:"reconnects"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridge, version string, status HealthStatus, relay RelayStats, modem ClientStats, address string, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:        bridge,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}

	conn := &ConnectionStatus{Status: "disconnected", Address: address}
	switch {
	case modem.Connected:
		conn.Status = "connected"
	case modem.Reconnecting:
		conn.Status = "reconnecting"
	}
	if !modem.LastActivity.IsZero() {
		last := modem.LastActivity.UTC()
		conn.LastActivity = &last
	}
	msg.Connection = conn

	msg.Statistics = &BridgeStatistics{
		InboundPublished:  relay.InboundPublished,
		InboundFailed:     relay.InboundFailed,
		OutboundSent:      relay.OutboundSent,
		OutboundFailed:    relay.OutboundFailed,
		OutboundDiscarded: relay.OutboundDiscarded,
		ModemReceived:     modem.MessagesReceived,
		ModemDropped:      modem.MessagesDropped,
		DecodeErrors:      modem.DecodeErrors,
		Errors:            modem.ErrorsTotal,
		Reconnects:        modem.ReconnectsTotal,
	}

	return msg
}

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/airlink2mqtt/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a local broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Host:        "127.0.0.1",
		Port:        1883,
		TopicPrefix: "airlink-test",
		ClientID:    "airlink2mqtt-test",
		QoS:         1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// newOfflineClient builds a Client that was never connected.
func newOfflineClient() *Client {
	cfg := testConfig()
	return &Client{
		client:        pahomqtt.NewClient(pahomqtt.NewClientOptions()),
		cfg:           cfg,
		clientID:      cfg.ClientID,
		topics:        NewTopics(cfg.TopicPrefix),
		subscriptions: make(map[string]subscription),
	}
}

// trackedSubscriptions returns how many subscriptions would be restored on
// reconnect.
func trackedSubscriptions(c *Client) int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

func isTracked(c *Client, topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (l *mockLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

// =============================================================================
// Options Tests
// =============================================================================

func TestResolveClientID(t *testing.T) {
	cfg := testConfig()
	if got := resolveClientID(cfg); got != "airlink2mqtt-test" {
		t.Errorf("resolveClientID() = %q, want configured ID", got)
	}

	cfg.ClientID = ""
	a := resolveClientID(cfg)
	b := resolveClientID(cfg)
	if !strings.HasPrefix(a, clientIDPrefix) {
		t.Errorf("generated ID %q lacks prefix %q", a, clientIDPrefix)
	}
	if a == b {
		t.Errorf("generated IDs should differ, both %q", a)
	}
}

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
	cfg.TLS = true
	cfg.Port = 8883
	if got := brokerURL(cfg); got != "ssl://127.0.0.1:8883" {
		t.Errorf("brokerURL() with TLS = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Username = "bridge"
	cfg.Password = "secret"

	opts := buildClientOptions(cfg, "cid")

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "cid" {
		t.Errorf("ClientID = %q, want cid", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Errorf("credentials not set: %q/%q", opts.Username, opts.Password)
	}
	if !opts.Order {
		t.Error("Order should be true so messages are delivered in sequence")
	}
	if !opts.AutoReconnect || !opts.ConnectRetry {
		t.Error("auto-reconnect and connect retry should be enabled")
	}
	if !opts.CleanSession {
		t.Error("CleanSession should be true")
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set without mqtt-tls")
	}
}

func TestBuildClientOptions_NoAuth(t *testing.T) {
	opts := buildClientOptions(testConfig(), "cid")
	if opts.Username != "" {
		t.Errorf("Username = %q, want empty", opts.Username)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.TLS = true
	opts := buildClientOptions(cfg, "cid")
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLSConfig = %+v", opts.TLSConfig)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, NewTopics("sms"), "cid")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "sms/status" {
		t.Errorf("WillTopic = %q, want sms/status", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d", opts.WillRetained, opts.WillQos)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if p.Status != "offline" || p.ClientID != "cid" || p.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", p)
	}
}

func TestStatusPayloads(t *testing.T) {
	var online, offline statusPayload
	if err := json.Unmarshal(buildOnlinePayload(`quote"id`), &online); err != nil {
		t.Fatalf("online payload: %v", err)
	}
	if err := json.Unmarshal(buildOfflinePayload("cid"), &offline); err != nil {
		t.Fatalf("offline payload: %v", err)
	}

	if online.Status != "online" || online.ClientID != `quote"id` || online.Reason != "" {
		t.Errorf("online = %+v", online)
	}
	if offline.Status != "offline" || offline.Reason != "graceful_shutdown" {
		t.Errorf("offline = %+v", offline)
	}
	if _, err := time.Parse(time.RFC3339, online.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", online.Timestamp, err)
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopics_Status(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"airlink", "airlink/status"},
		{"airlink/", "airlink/status"},
		{"site/sms", "site/sms/status"},
	}
	for _, tt := range tests {
		if got := NewTopics(tt.prefix).Status(); got != tt.want {
			t.Errorf("NewTopics(%q).Status() = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

// =============================================================================
// Validation Tests (no broker needed)
// =============================================================================

func TestPublish_Validation(t *testing.T) {
	c := newOfflineClient()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"wildcard topic", "airlink/#", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "airlink/x", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "airlink/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"disconnected", "airlink/x", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := newOfflineClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("a/b", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("a/b", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if n := trackedSubscriptions(c); n != 0 {
		t.Errorf("tracked %d subscriptions, want 0 after failed subscribes", n)
	}
}

func TestUnsubscribe_ForgetsWhileDisconnected(t *testing.T) {
	c := newOfflineClient()
	c.subscriptions["a/b"] = subscription{topic: "a/b", qos: 1}

	if err := c.Unsubscribe("a/b"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
	if isTracked(c, "a/b") {
		t.Error("subscription should be forgotten")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c := newOfflineClient()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on empty client error = %v", err)
	}
}

// =============================================================================
// Handler Tests
// =============================================================================

func TestDispatch_RecoversPanic(t *testing.T) {
	c := newOfflineClient()
	logger := &mockLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "a/b", nil)

	if len(logger.errors) != 1 {
		t.Errorf("expected one error log, got %v", logger.errors)
	}
}

func TestDispatch_LogsHandlerError(t *testing.T) {
	c := newOfflineClient()
	logger := &mockLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { return errors.New("bad") }, "a/b", nil)

	if len(logger.warns) != 1 {
		t.Errorf("expected one warn log, got %v", logger.warns)
	}
}

func TestDispatch_NilLogger(t *testing.T) {
	c := newOfflineClient()
	c.dispatch(func(string, []byte) error { panic("boom") }, "a/b", nil)
}

func TestHandleDisconnect_Callback(t *testing.T) {
	c := newOfflineClient()
	c.connected = true

	var got error
	c.SetOnDisconnect(func(err error) { got = err })
	c.handleDisconnect(errors.New("link down"))

	if got == nil || got.Error() != "link down" {
		t.Errorf("disconnect callback got %v", got)
	}
	if c.connected {
		t.Error("connected should be false after disconnect")
	}
}

func TestConnect_BrokerUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the connect timeout")
	}

	cfg := testConfig()
	cfg.Port = 1 // nothing listens here

	_, err := Connect(cfg, nil)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

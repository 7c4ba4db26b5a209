//go:build integration

package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// Integration tests against a live broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationClient(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.ClientID = clientID

	client, err := Connect(cfg, &mockLogger{})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	return client
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client := integrationClient(t, "airlink2mqtt-int-subs")

	handler := func(string, []byte) error { return nil }
	send, health := "airlink-test/message/send", "airlink-test/health"

	for _, topic := range []string{send, health} {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if n := trackedSubscriptions(client); n != 2 {
		t.Errorf("tracked %d subscriptions, want 2", n)
	}

	if err := client.Unsubscribe(health); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if isTracked(client, health) {
		t.Error("subscription still tracked after unsubscribe")
	}
	if !isTracked(client, send) {
		t.Error("send subscription should still be tracked")
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	pub := integrationClient(t, "airlink2mqtt-int-pub")
	sub := integrationClient(t, "airlink2mqtt-int-sub")

	topic := "airlink-test/message/receive"
	expected := `{"phone_number":"+15551234567","message":"hello"}`

	received := make(chan string, 1)
	var once sync.Once
	err := sub.Subscribe(topic, 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != expected {
			t.Errorf("received %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

func TestIntegration_OnlineStatusRetained(t *testing.T) {
	bridge := integrationClient(t, "airlink2mqtt-int-status")
	watcher := integrationClient(t, "airlink2mqtt-int-watcher")

	got := make(chan statusPayload, 4)
	err := watcher.Subscribe(bridge.topics.Status(), 1, func(_ string, p []byte) error {
		var s statusPayload
		if err := json.Unmarshal(p, &s); err == nil && s.ClientID == bridge.ClientID() {
			got <- s
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case s := <-got:
		if s.Status != "online" {
			t.Errorf("status = %q, want online", s.Status)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for retained online status")
	}
}

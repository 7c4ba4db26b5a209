package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/airlink2mqtt/internal/bridges/airlink"
)

// relayMeasurement is the measurement holding one point per relay outcome.
const relayMeasurement = "sms_relay"

var _ airlink.Recorder = (*Client)(nil)

// RecordRelay writes one sms_relay point tagged with direction and outcome.
// Phone numbers and message bodies are not written.
//
// The write is queued, so the returned error is always nil; failures reach
// the SetOnError callback.
func (c *Client) RecordRelay(_ context.Context, rec airlink.RelayRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}

	fields := map[string]any{
		"count":  1,
		"length": len(rec.Message.Message),
	}
	if rec.Err != nil {
		fields["error"] = rec.Err.Error()
	}

	c.writePoint(relayMeasurement, map[string]string{
		"direction": string(rec.Direction),
		"outcome":   string(rec.Outcome),
	}, fields, at)
	return nil
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}

// Package influxdb records SMS relay metrics in InfluxDB v2.
//
// It wraps influxdb-client-go's non-blocking write API. Each relay outcome
// becomes one point in the sms_relay measurement, tagged by direction
// (inbound, outbound) and outcome (relayed, failed, discarded), so rates and
// failure ratios can be graphed without storing message content.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("metrics write failed", "error", err) })
//
// Client implements airlink.Recorder and is handed to the bridge.
package influxdb

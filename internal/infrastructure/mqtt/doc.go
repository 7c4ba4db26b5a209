// Package mqtt provides MQTT client connectivity for airlink2mqtt.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Subscriptions restored after every reconnect
//   - Last Will and Testament (LWT) on <prefix>/status
//
// Messages are delivered to handlers one at a time in arrival order, so
// outbound SMS requests reach the modem in the order they were published.
//
// # Security Considerations
//
//   - Enable TLS (mqtt-tls) when the broker is not on the local host
//   - Pass the broker password via AIRLINK2MQTT_MQTT_PASSWORD rather than
//     the command line
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("airlink/message/send", 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt

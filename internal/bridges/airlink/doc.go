// Package airlink implements the SMS bridge between a Sierra Wireless
// AirLink modem and an MQTT broker.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   MQTT Broker   │   MQTT   │  Bridge Relay   │  UDP/TCP
//	│                 │◄────────►│   (this pkg)    │◄─────────► AirLink modem
//	└─────────────────┘          └─────────────────┘
//
// Inbound SMS received by the modem are published as JSON to
// <prefix>/message/receive. JSON requests published to <prefix>/message/send
// are forwarded to the modem for delivery.
//
//	{"phone_number": "+15551234567", "message": "hello"}
//
// # Modem Protocol
//
// Each SMS is one frame of the form
//
//	<phone_number>:<message>
//
// with backslash, newline and carriage return in the message escaped as
// \\, \n and \r. Over UDP a datagram carries one frame; over TCP frames are
// terminated by a newline. Inbound senders may be any non-blank string
// (alphanumeric IDs, short codes); outbound recipients must be E.164-like.
//
// # Delivery
//
// Delivery is best effort. The bridge keeps no per-message state: a publish
// or send that fails is logged, counted and dropped. Inbound SMS are handed
// to the bridge in arrival order by a single worker; a full queue drops the
// newest message.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package airlink

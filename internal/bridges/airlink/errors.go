package airlink

import "errors"

// Domain errors for the AirLink bridge package.
var (
	// ErrNotConnected is returned when an operation requires a connection
	// but the client is not connected to the modem.
	ErrNotConnected = errors.New("airlink: not connected to modem")

	// ErrConnectionFailed is returned when the modem socket cannot be opened.
	ErrConnectionFailed = errors.New("airlink: connection to modem failed")

	// ErrSendFailed is returned when writing an SMS to the modem fails.
	ErrSendFailed = errors.New("airlink: send failed")

	// ErrInvalidPhoneNumber is returned when a phone number does not look
	// like an E.164 number.
	ErrInvalidPhoneNumber = errors.New("airlink: invalid phone number")

	// ErrEmptyMessage is returned when an outbound SMS has no text.
	ErrEmptyMessage = errors.New("airlink: empty message")

	// ErrInvalidFrame is returned when a frame from the modem cannot be decoded.
	ErrInvalidFrame = errors.New("airlink: invalid frame")

	// ErrFrameTooLarge is returned when a frame exceeds maxFrameSize.
	ErrFrameTooLarge = errors.New("airlink: frame too large")

	// ErrProtocolDesync is returned when the TCP stream can no longer be
	// framed. The connection is closed and re-established.
	ErrProtocolDesync = errors.New("airlink: protocol desync")

	// ErrInvalidPayload is returned when an MQTT payload is not a JSON
	// object with string fields.
	ErrInvalidPayload = errors.New("airlink: invalid payload")

	// ErrMissingField is returned when a required payload field is absent or empty.
	ErrMissingField = errors.New("airlink: missing field")

	// ErrUnexpectedTopic is returned for MQTT messages on topics the bridge
	// does not handle.
	ErrUnexpectedTopic = errors.New("airlink: unexpected topic")

	// errForeignSource marks a datagram from an address other than the modem.
	errForeignSource = errors.New("airlink: datagram from unexpected source")
)

package mqtt

import "errors"

var (
	// ErrNotConnected means the broker connection is down. Paho keeps
	// reconnecting in the background.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed means the broker was unreachable at startup.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS values above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics and wildcard publish topics.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)

package mqtt

import "errors"

// ErrPublishFailed is returned when a publish still fails after the
// configured retry attempts.
var ErrPublishFailed = errors.New("publish failed after retries")

// ErrNotConnected is returned when the bus client has no broker connection.
var ErrNotConnected = errors.New("not connected to broker")

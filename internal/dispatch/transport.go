// Package dispatch sends device commands to beacons through their gateway's
// command channel. The transport connection is an explicit handle with an
// observable status; commands issued while disconnected fail fast instead of
// queueing.
package dispatch

import "context"

// PublishResult is the bounded-wait outcome of one publish attempt.
type PublishResult int

const (
	// Delivered means the transport accepted the payload. Delivery is
	// fire-and-forget beyond this point; no acknowledgment is awaited.
	Delivered PublishResult = iota
	// NotConnected means no transport connection was established.
	NotConnected
	// TimedOut means the publish did not complete within the bound.
	TimedOut
)

// String returns the metric/log label for the result.
func (r PublishResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case NotConnected:
		return "not_connected"
	case TimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Ok reports whether the publish was delivered.
func (r PublishResult) Ok() bool { return r == Delivered }

// Transport is the process-wide command connection handle.
type Transport interface {
	// Connect establishes the connection. Connecting while already
	// connected is a no-op success.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down. Reconnection is triggered
	// externally, never automatically.
	Disconnect() error

	// Connected reports the current connection status.
	Connected() bool

	// Publish sends a payload to a channel with a bounded wait.
	Publish(ctx context.Context, channel string, payload []byte) PublishResult
}

// Package dispatchtest provides a Transport fake for exercising command
// dispatch without a broker.
package dispatchtest

import (
	"context"
	"sync"

	"github.com/safesite/proximity/internal/dispatch"
)

// FakeTransport records published payloads and simulates connection states.
// The zero value starts disconnected and reports Delivered once connected.
type FakeTransport struct {
	mu        sync.Mutex
	connected bool

	// Result is returned for publishes while connected.
	Result dispatch.PublishResult

	Channels [][2]string // channel, payload pairs in publish order
}

func (f *FakeTransport) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *FakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *FakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeTransport) Publish(_ context.Context, channel string, payload []byte) dispatch.PublishResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return dispatch.NotConnected
	}
	f.Channels = append(f.Channels, [2]string{channel, string(payload)})
	return f.Result
}

// Published returns the number of accepted publishes.
func (f *FakeTransport) Published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Channels)
}

// LastPayload returns the payload of the most recent publish, or "".
func (f *FakeTransport) LastPayload() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Channels) == 0 {
		return ""
	}
	return f.Channels[len(f.Channels)-1][1]
}

// LastChannel returns the channel of the most recent publish, or "".
func (f *FakeTransport) LastChannel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Channels) == 0 {
		return ""
	}
	return f.Channels[len(f.Channels)-1][0]
}

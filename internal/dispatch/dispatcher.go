package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/pkg/logger"
	"github.com/safesite/proximity/pkg/metrics"
)

// Ring command defaults: ring type 4 is vibration.
const (
	defaultRingType   = 4
	defaultRingTimeMS = 4000
	defaultChannelFmt = "gateway:%s:cmd"
)

// RingCommand is the transport-level envelope published to a gateway's
// command channel.
type RingCommand struct {
	Msg      string `json:"msg"`
	MAC      string `json:"mac"`
	RingType int    `json:"ringType"`
	RingTime int    `json:"ringTime"`
	LedOn    int    `json:"ledOn"`
	LedOff   int    `json:"ledOff"`
}

// BeaconResolver resolves a beacon's physical identity.
type BeaconResolver interface {
	Beacon(ctx context.Context, beaconID string) (model.Beacon, error)
}

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithRing overrides the ring type and duration.
func WithRing(ringType, ringTimeMS int) Option {
	return func(d *Dispatcher) {
		if ringType > 0 {
			d.ringType = ringType
		}
		if ringTimeMS > 0 {
			d.ringTimeMS = ringTimeMS
		}
	}
}

// WithLED sets the LED on/off intervals carried in the envelope.
func WithLED(on, off int) Option {
	return func(d *Dispatcher) {
		d.ledOn = on
		d.ledOff = off
	}
}

// WithChannelFormat overrides the gateway channel naming scheme. The format
// must contain one %s verb for the gateway id.
func WithChannelFormat(format string) Option {
	return func(d *Dispatcher) {
		if strings.Contains(format, "%s") {
			d.channelFmt = format
		}
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// Dispatcher builds ring command envelopes and publishes them through the
// transport handle. It never blocks waiting for delivery acknowledgment.
type Dispatcher struct {
	transport Transport
	resolver  BeaconResolver

	channelFmt string
	ringType   int
	ringTimeMS int
	ledOn      int
	ledOff     int

	log logger.Logger
}

// New creates a Dispatcher with configuration options.
func New(transport Transport, resolver BeaconResolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport:  transport,
		resolver:   resolver,
		channelFmt: defaultChannelFmt,
		ringType:   defaultRingType,
		ringTimeMS: defaultRingTimeMS,
		log:        logger.Get().Named("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendRing resolves the beacon's MAC and publishes a ring command on the
// gateway's channel. A disconnected transport yields NotConnected, not an
// error; errors are reserved for unknown beacons and marshalling problems.
func (d *Dispatcher) SendRing(ctx context.Context, beaconID, gatewayID string) (PublishResult, error) {
	beacon, err := d.resolver.Beacon(ctx, beaconID)
	if err != nil {
		return NotConnected, fmt.Errorf("resolve beacon: %w", err)
	}

	cmd := RingCommand{
		Msg:      "ring",
		MAC:      strings.ReplaceAll(beacon.MAC, ":", ""),
		RingType: d.ringType,
		RingTime: d.ringTimeMS,
		LedOn:    d.ledOn,
		LedOff:   d.ledOff,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return NotConnected, fmt.Errorf("marshal ring command: %w", err)
	}

	channel := fmt.Sprintf(d.channelFmt, gatewayID)
	result := d.transport.Publish(ctx, channel, payload)
	metrics.RecordCommandResult(result.String())

	if result != Delivered {
		d.log.Warn(ctx, "ring command not delivered",
			logger.String("beacon", beaconID),
			logger.String("gateway", gatewayID),
			logger.String("result", result.String()),
		)
	} else {
		d.log.Debug(ctx, "ring command published",
			logger.String("beacon", beaconID),
			logger.String("channel", channel),
		)
	}
	return result, nil
}

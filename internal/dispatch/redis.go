package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/safesite/proximity/pkg/logger"
)

const (
	defaultDialTimeout    = 5 * time.Second
	defaultPublishTimeout = 2 * time.Second
)

// RedisTransport publishes command envelopes on redis pub/sub channels.
type RedisTransport struct {
	addr           string
	publishTimeout time.Duration
	log            logger.Logger

	mu  sync.RWMutex
	rdb *goredis.Client
}

// RedisOption applies a configuration option to the RedisTransport.
type RedisOption func(*RedisTransport)

// WithPublishTimeout bounds every publish attempt.
func WithPublishTimeout(d time.Duration) RedisOption {
	return func(t *RedisTransport) {
		if d > 0 {
			t.publishTimeout = d
		}
	}
}

// WithTransportLogger sets a custom logger for the transport.
func WithTransportLogger(l logger.Logger) RedisOption {
	return func(t *RedisTransport) {
		if l != nil {
			t.log = l
		}
	}
}

// NewRedisTransport creates a disconnected transport handle for the given
// redis address.
func NewRedisTransport(addr string, opts ...RedisOption) *RedisTransport {
	t := &RedisTransport{
		addr:           addr,
		publishTimeout: defaultPublishTimeout,
		log:            logger.Get().Named("transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect dials redis and verifies the connection with a ping. Calling it
// while connected is a no-op success.
func (t *RedisTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rdb != nil {
		return nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        t.addr,
		DialTimeout: defaultDialTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return err
	}

	t.rdb = rdb
	t.log.Info(ctx, "command transport connected", logger.String("addr", t.addr))
	return nil
}

// Disconnect closes the connection. Safe to call when disconnected.
func (t *RedisTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rdb == nil {
		return nil
	}
	err := t.rdb.Close()
	t.rdb = nil
	return err
}

// Connected reports whether a connection is currently established.
func (t *RedisTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rdb != nil
}

// Publish sends the payload to the channel with a bounded wait. A missing
// connection or a timeout is a result, not an error.
func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) PublishResult {
	t.mu.RLock()
	rdb := t.rdb
	t.mu.RUnlock()

	if rdb == nil {
		return NotConnected
	}

	pubCtx, cancel := context.WithTimeout(ctx, t.publishTimeout)
	defer cancel()

	if err := rdb.Publish(pubCtx, channel, payload).Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			t.log.Warn(ctx, "command publish timed out", logger.String("channel", channel))
			return TimedOut
		}
		t.log.Warn(ctx, "command publish failed", logger.String("channel", channel), logger.Error(err))
		return NotConnected
	}
	return Delivered
}

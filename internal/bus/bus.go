// Package bus wraps NATS as the brokerless publish/subscribe transport:
// topic-prefix subscriptions, tagged-JSON payloads, and automatic
// reconnect with exponential backoff. It centralizes connect/reconnect/
// backpressure handling behind one shared Bus type instead of each
// service dialing nats.Conn directly, so every service shares one
// transport behavior.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// Config configures a Bus connection.
type Config struct {
	URLs []string
	Component string
	ReconnectMin time.Duration // default 1s
	ReconnectMax time.Duration // default 60s
	HighWaterMark int // size in KiB of NATS's outgoing buffer while reconnecting
	HeartbeatEvery time.Duration // 0 disables automatic heartbeat publication
}

// Bus is a single service's handle onto the transport: it can publish
// tagged messages and install topic-prefix subscriptions.
type Bus struct {
	cfg Config
	log *zap.SugaredLogger
	conn *nats.Conn
	mu sync.Mutex
	drops int64
	parseErrs int64
}

// Connect dials NATS with the backoff policy (1s -> 60s cap).
// Transport errors during the initial dial are retried forever via the
// backoff policy until ctx is cancelled; once connected, nats.go's own
// reconnect loop (configured with the same bounds) takes over for
// mid-session drops.
func Connect(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Bus, error) {
	if cfg.ReconnectMin == 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 60 * time.Second
	}
	if cfg.HighWaterMark == 0 {
		cfg.HighWaterMark = 64 * 1024
	}
	if len(cfg.URLs) == 0 {
		cfg.URLs = []string{nats.DefaultURL}
	}

	b := &Bus{cfg: cfg, log: log}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.ReconnectMin
	bo.MaxInterval = cfg.ReconnectMax
	bo.MaxElapsedTime = 0 // retry until ctx cancellation

	operation := func() error {
		opts := []nats.Option{
			nats.Name(cfg.Component),
			nats.MaxReconnects(-1),
			nats.CustomReconnectDelay(func(attempts int) time.Duration {
				d := cfg.ReconnectMin
				for i := 1; i < attempts && d < cfg.ReconnectMax; i++ {
					d *= 2
				}
				if d > cfg.ReconnectMax {
					d = cfg.ReconnectMax
				}
				return d
			}),
			nats.ReconnectBufSize(cfg.HighWaterMark * 1024),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					log.Warnw("bus disconnected", "error", err)
				}
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Infow("bus reconnected")
			}),
		}
		conn, err := nats.Connect(joinURLs(cfg.URLs), opts...)
		if err != nil {
			log.Warnw("bus connect failed, retrying", "error", err)
			return schema.NewError(schema.ErrTransport, "nats connect", err)
		}
		b.conn = conn
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	if cfg.HeartbeatEvery > 0 {
		go b.heartbeatLoop(ctx)
	}

	return b, nil
}

func joinURLs(urls []string) string {
	out := urls[0]
	for _, u := range urls[1:] {
		out += "," + u
	}
	return out
}

// Publish marshals v as a tagged envelope and publishes it on topic.
// Back-pressure is bounded by NATS's reconnect buffer rather than blocking
// the publisher indefinitely: once that buffer is full, Publish returns a
// transport error for the new message. Older buffered messages are not
// dropped to make room, and rejected publishes are not counted.
func (b *Bus) Publish(topic string, msgType schema.MessageType, v interface{}) error {
	payload, err := schema.Encode(msgType, v)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(topic, payload); err != nil {
		return schema.NewError(schema.ErrTransport, fmt.Sprintf("publish %s", topic), err)
	}
	return nil
}

// Handler is invoked per received message with its topic and decoded
// envelope type/payload. Handlers return nothing; payload decode failures
// are counted and logged before the handler would run, and are non-fatal.
type Handler func(topic string, msgType schema.MessageType, data []byte)

// SubscribePrefix installs a subscription for every topic under prefix
// (NATS wildcard subject prefix + ".>" ), matching the dotted topic
// grammar.
func (b *Bus) SubscribePrefix(prefix string, h Handler) (*nats.Subscription, error) {
	subject := prefix + ".>"
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		typ, data, err := schema.Decode(msg.Data)
		if err != nil {
			b.mu.Lock()
			b.parseErrs++
			b.mu.Unlock()
			b.log.Warnw("dropping malformed message", "subject", msg.Subject, "error", err)
			return
		}
		h(msg.Subject, typ, data)
	})
	if err != nil {
		return nil, schema.NewError(schema.ErrTransport, fmt.Sprintf("subscribe %s", subject), err)
	}
	return sub, nil
}

// Subscribe installs a subscription for exactly one topic (no wildcard).
func (b *Bus) Subscribe(topic string, h Handler) (*nats.Subscription, error) {
	sub, err := b.conn.Subscribe(topic, func(msg *nats.Msg) {
		typ, data, err := schema.Decode(msg.Data)
		if err != nil {
			b.mu.Lock()
			b.parseErrs++
			b.mu.Unlock()
			b.log.Warnw("dropping malformed message", "subject", msg.Subject, "error", err)
			return
		}
		h(msg.Subject, typ, data)
	})
	if err != nil {
		return nil, schema.NewError(schema.ErrTransport, fmt.Sprintf("subscribe %s", topic), err)
	}
	return sub, nil
}

// ParseErrors returns the count of payload decode failures observed so far.
func (b *Bus) ParseErrors() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parseErrs
}

func (b *Bus) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := schema.Heartbeat{Component: b.cfg.Component, Timestamp: time.Now().UTC()}
			if err := b.Publish(schema.TopicSystemHeartbeat, schema.TypeHeartbeat, hb); err != nil {
				b.log.Warnw("heartbeat publish failed", "error", err)
			}
		}
	}
}

// Shutdown publishes a final Shutdown control message and drains within
// deadline before closing the connection (cancellation: bounded
// drain, default 2s).
func (b *Bus) Shutdown(reason string, deadline time.Duration) {
	sd := schema.Shutdown{Component: b.cfg.Component, Reason: reason, Timestamp: time.Now().UTC()}
	if err := b.Publish(schema.TopicSystemHeartbeat, schema.TypeShutdown, sd); err != nil {
		b.log.Warnw("shutdown publish failed", "error", err)
	}
	if b.conn != nil {
		_ = b.conn.FlushTimeout(deadline)
		b.conn.Close()
	}
}

// Package redis publishes emitted signals: a capped Redis Stream for
// consumers that poll, and PubSub for anything listening live.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"scanner-systemv1/internal/model"
)

const (
	signalStream       = "stream:signals"
	signalStreamMaxLen = 10000
	signalChannel      = "pub:signal:" // + ticker
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes signals to Redis.
type Publisher struct {
	client *goredis.Client

	// OnPublish, if set, observes publish latency.
	OnPublish func(time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a new Publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("[redis] connected", "addr", cfg.Addr)
	return &Publisher{client: client}, nil
}

// Run consumes signals from sigCh and publishes each one.
// Blocks until ctx is cancelled or sigCh is closed.
func (p *Publisher) Run(ctx context.Context, sigCh <-chan model.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			p.publish(ctx, &sig)
		}
	}
}

// Publish writes one signal to the stream and its ticker's PubSub channel.
func (p *Publisher) Publish(ctx context.Context, sig *model.Signal) error {
	payload := sig.JSON()

	err := p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: signalStream,
		MaxLen: signalStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", signalStream, err)
	}

	if err := p.client.Publish(ctx, signalChannel+sig.Ticker, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", signalChannel+sig.Ticker, err)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, sig *model.Signal) {
	start := time.Now()
	if err := p.Publish(ctx, sig); err != nil {
		slog.Warn("[redis] signal publish failed",
			"ticker", sig.Ticker, "pattern", sig.Pattern, "err", err)
	}
	if p.OnPublish != nil {
		p.OnPublish(time.Since(start))
	}
}

// Close closes the underlying client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/darkchess-server/internal/obslog"
	"github.com/park285/darkchess-server/pkg/chessdto"
)

// Broker carries game events between the API process and the websocket
// fanout over a redis pub/sub channel, so the two can scale apart.
type Broker struct {
	rdb     *redis.Client
	channel string
}

func NewBroker(redisURL, channel string) (*Broker, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for event broker")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewBrokerFromClient(rdb, channel), nil
}

// NewBrokerFromClient wraps an existing client, used by tests.
func NewBrokerFromClient(rdb *redis.Client, channel string) *Broker {
	if strings.TrimSpace(channel) == "" {
		channel = "darkchess:events"
	}
	return &Broker{rdb: rdb, channel: channel}
}

func (b *Broker) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

// Publish sends one event to every subscriber.
func (b *Broker) Publish(ctx context.Context, ev chessdto.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Subscription is a live event feed. Close it to stop the pump.
type Subscription struct {
	C  <-chan chessdto.Event
	ps *redis.PubSub
}

func (s *Subscription) Close() error { return s.ps.Close() }

// Subscribe opens a feed of decoded events. Malformed payloads are
// logged and skipped, they must not kill the pump.
func (b *Broker) Subscribe(ctx context.Context) *Subscription {
	ps := b.rdb.Subscribe(ctx, b.channel)
	out := make(chan chessdto.Event, 64)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev chessdto.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				obslog.L().Warn("event_decode_error", zap.Error(err))
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &Subscription{C: out, ps: ps}
}

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hearthhub/go-realtime-notify/pkg/notify"
)

const channelPrefix = "notify:topic:"

// backplaneFrame is the cross-instance wire format. Origin suppresses echo:
// an instance ignores frames it published itself.
type backplaneFrame struct {
	Origin   string          `json:"origin"`
	Envelope notify.Envelope `json:"envelope"`
}

// RedisBackplane fans published envelopes out to the other service instances
// over redis pub/sub. Local delivery never depends on it; a single-node
// deployment simply runs without one.
type RedisBackplane struct {
	rdb    *redis.Client
	sub    *redis.PubSub
	origin string
	logger *slog.Logger
}

// NewRedisBackplane connects and pings so a bad address fails at startup, not
// on the first publish.
func NewRedisBackplane(addr, password string, db int, logger *slog.Logger) (*RedisBackplane, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisBackplane{
		rdb:    rdb,
		origin: uuid.NewString(),
		logger: logger.With("component", "RedisBackplane"),
	}, nil
}

// Start opens the pub/sub connection and pumps received frames into deliver.
// Topic channels are added and removed later via Subscribe/Unsubscribe as the
// registry refcount moves.
func (b *RedisBackplane) Start(ctx context.Context, deliver func(context.Context, notify.Envelope)) {
	b.sub = b.rdb.Subscribe(ctx)

	go func() {
		for msg := range b.sub.Channel() {
			var frame backplaneFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				b.logger.Warn("Discarding undecodable backplane frame", "channel", msg.Channel, "err", err)
				continue
			}
			if frame.Origin == b.origin {
				continue
			}
			deliver(ctx, frame.Envelope)
		}
	}()
}

func (b *RedisBackplane) Subscribe(ctx context.Context, topic notify.Topic) error {
	return b.sub.Subscribe(ctx, channelPrefix+topic.String())
}

func (b *RedisBackplane) Unsubscribe(ctx context.Context, topic notify.Topic) error {
	return b.sub.Unsubscribe(ctx, channelPrefix+topic.String())
}

func (b *RedisBackplane) Publish(ctx context.Context, env notify.Envelope) error {
	payload, err := json.Marshal(backplaneFrame{Origin: b.origin, Envelope: env})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelPrefix+env.Topic.String(), payload).Err()
}

func (b *RedisBackplane) Close() error {
	if b.sub != nil {
		_ = b.sub.Close()
	}
	return b.rdb.Close()
}

package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const redisChannel = "backstage.sessions"

// RedisBridge fans committed session documents out across instances: commits
// publish to a Redis channel, and Run feeds everything received there
// (including this instance's own writes) into the local broker. With the
// bridge installed the broker only ever hears from Redis, so local and
// remote commits arrive on the one ordered path.
type RedisBridge struct {
	rdb    *redis.Client
	broker *Broker
	logger *slog.Logger
}

func NewRedisBridge(rdb *redis.Client, broker *Broker, logger *slog.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, broker: broker, logger: logger}
}

type bridgeMessage struct {
	ID  string          `json:"id"`
	Doc json.RawMessage `json:"doc"`
}

func (b *RedisBridge) PublishSession(ctx context.Context, id string, doc []byte) {
	payload, err := json.Marshal(bridgeMessage{ID: id, Doc: doc})
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, redisChannel, payload).Err(); err != nil {
		b.logger.Error("redis publish failed, delivering locally only", "error", err)
		b.broker.PublishSession(ctx, id, doc)
	}
}

// Run subscribes to the bridge channel and forwards documents into the local
// broker until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, redisChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg bridgeMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.logger.Warn("dropping malformed bridge message", "error", err)
				continue
			}
			b.broker.PublishSession(ctx, msg.ID, msg.Doc)
		}
	}
}

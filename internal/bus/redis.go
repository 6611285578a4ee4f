package bus

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/predictrack/predictrack-go/internal/model"
)

// EventStream is the Redis stream other processes can consume for prompt
// refresh. The in-process bus stays the source of truth for local
// subscribers; the stream mirror is advisory.
const EventStream = "predictrack.events"

// RedisBridge mirrors published events into a Redis stream. A nil client
// turns every call into a no-op so single-process deployments need no Redis.
type RedisBridge struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewRedisBridge(rdb *redis.Client, log zerolog.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, log: log}
}

// Forward drains the given subscription, XAdd-ing each event. Run it in its
// own goroutine; it returns when the channel closes or ctx is cancelled.
func (b *RedisBridge) Forward(ctx context.Context, events <-chan model.Event) {
	if b.rdb == nil {
		for range events {
		}
		return
	}

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			b.publish(ctx, evt)
		case <-ctx.Done():
			return
		}
	}
}

func (b *RedisBridge) publish(ctx context.Context, evt model.Event) {
	values := map[string]interface{}{
		"type":      string(evt.Type),
		"pollId":    evt.PollID,
		"timestamp": evt.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	for k, v := range evt.Payload {
		values["payload."+k] = v
	}

	if err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: EventStream,
		MaxLen: 10000,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		b.log.Warn().Err(err).Str("poll_id", evt.PollID).Msg("bus: redis stream publish failed")
	}
}

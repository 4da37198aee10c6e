package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"
)

// Publisher is the subset of the go-redis client used to publish events.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// Redis publishes every event as JSON on a pub/sub channel
type Redis struct {
	client  Publisher
	channel string
	logger  *slog.Logger
}

// NewRedis creates an emitter publishing on channel
func NewRedis(client Publisher, channel string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Redis{client: client, channel: channel, logger: logger}
}

func (r *Redis) Emit(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("failed to encode event", "name", ev.Name, "error", err)
		return
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("failed to publish event",
			"name", ev.Name,
			"channel", r.channel,
			"error", err)
	}
}

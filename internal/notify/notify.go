// Package notify publishes best-effort push payloads for users that may or
// may not have a live connection. Delivery is somebody else's problem: the
// dispatcher never reports failure to its caller.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-comms/internal/metrics"
)

// Dispatcher is the fire-and-forget notification collaborator.
type Dispatcher interface {
	Publish(ctx context.Context, userID int64, payload any)
}

// RedisDispatcher publishes one channel per user; downstream workers
// subscribe and forward to whatever push transport the device registered.
type RedisDispatcher struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisDispatcher(client *redis.Client, logger zerolog.Logger) *RedisDispatcher {
	return &RedisDispatcher{
		client: client,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

func (d *RedisDispatcher) Publish(ctx context.Context, userID int64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error().Err(err).Int64("user_id", userID).Msg("notification payload not serializable")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	channel := fmt.Sprintf("user:%d", userID)
	if err := d.client.Publish(ctx, channel, data).Err(); err != nil {
		// Best effort only. Log and move on.
		d.logger.Warn().Err(err).Int64("user_id", userID).Msg("notification publish failed")
		return
	}
	metrics.NotificationsPublished.Inc()
}

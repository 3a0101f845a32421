package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	redisMonitorKeyPrefix = "farewatch:monitor:"
	redisEventStream      = "farewatch:monitor-events"
	redisStreamMaxLen     = 10000
)

// RedisConfig holds connection settings for the Redis sink.
type RedisConfig struct {
	Addr     string
	Password string // optional
	DB       int    // optional
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

type redisCommands interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisRecorder keeps the latest monitor record in a hash and appends
// events to a capped stream.
type RedisRecorder struct {
	client redisCommands
}

// NewRedisRecorder creates a RedisRecorder on top of a connected client.
func NewRedisRecorder(client redis.Cmdable) *RedisRecorder {
	return &RedisRecorder{client: client}
}

func (r *RedisRecorder) RecordMonitorEvent(ctx context.Context, monitorID string, fields Fields) error {
	values := stringValues(fields)
	values["monitor_id"] = monitorID

	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: redisEventStream,
		MaxLen: redisStreamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd monitor event: %w", err)
	}
	return nil
}

func (r *RedisRecorder) UpdateMonitorRecord(ctx context.Context, monitorID string, fields Fields) error {
	values := stringValues(fields)
	if len(values) == 0 {
		return nil
	}
	if err := r.client.HSet(ctx, redisMonitorKeyPrefix+monitorID, values).Err(); err != nil {
		return fmt.Errorf("redis hset monitor: %w", err)
	}
	return nil
}

package rbac

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultAlertKey is the Redis list security alerts are pushed to
const DefaultAlertKey = "hms-access:security-alerts"

// RedisAlertChannel pushes alerts onto a capped Redis list, newest first,
// for review tooling shared across service replicas
type RedisAlertChannel struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisAlertChannel connects to redisURL (redis://[:password@]host:port/db).
// An empty key uses DefaultAlertKey; maxLen <= 0 keeps 1000 alerts.
func NewRedisAlertChannel(ctx context.Context, redisURL, key string, maxLen int) (*RedisAlertChannel, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if key == "" {
		key = DefaultAlertKey
	}
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &RedisAlertChannel{client: client, key: key, maxLen: int64(maxLen)}, nil
}

// SendAlert pushes the alert and trims the list in one transaction
func (rc *RedisAlertChannel) SendAlert(ctx context.Context, alert *SecurityAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	_, err = rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, rc.key, data)
		pipe.LTrim(ctx, rc.key, 0, rc.maxLen-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}

// Recent returns up to n alerts, newest first
func (rc *RedisAlertChannel) Recent(ctx context.Context, n int) ([]*SecurityAlert, error) {
	if n <= 0 {
		return nil, nil
	}
	values, err := rc.client.LRange(ctx, rc.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}

	alerts := make([]*SecurityAlert, 0, len(values))
	for _, v := range values {
		var alert SecurityAlert
		if err := json.Unmarshal([]byte(v), &alert); err != nil {
			return nil, fmt.Errorf("failed to decode alert: %w", err)
		}
		alerts = append(alerts, &alert)
	}
	return alerts, nil
}

// Ping reports whether redis is reachable
func (rc *RedisAlertChannel) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the redis client
func (rc *RedisAlertChannel) Close() error {
	return rc.client.Close()
}

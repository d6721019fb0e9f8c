package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the StatusStore interface using a Redis hash shared by all instances
type RedisStore struct {
	client *redis.Client
	opts   *StoreOptions
	now    func() time.Time
}

// NewRedisStore creates a new Redis status store from an address like tcp://:pass@host:6379/0
func NewRedisStore(ctx context.Context, addr string, options ...RedisOption) (*RedisStore, error) {
	redisOpts, err := parseRedisAddr(addr)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(redisOpts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := &RedisStore{
		client: client,
		opts:   DefaultStoreOptions(),
		now:    time.Now,
	}

	// Apply options
	for _, option := range options {
		option(store)
	}

	return store, nil
}

// RedisOption is a function that configures Redis store options
type RedisOption func(*RedisStore)

// WithStoreOptions sets store options
func WithStoreOptions(opts *StoreOptions) RedisOption {
	return func(rs *RedisStore) {
		rs.opts = opts
	}
}

func parseRedisAddr(addr string) (*redis.Options, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("can't parse url for redis: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("redis address %q has no host", addr)
	}

	var passwd string
	if u.User != nil {
		passwd, _ = u.User.Password()
	}
	db := 0
	if 1 < len(u.Path) {
		db, err = strconv.Atoi(u.Path[1:])
		if err != nil {
			return nil, fmt.Errorf("can't convert %q into redis db: %w", u.Path[1:], err)
		}
	}

	network := u.Scheme
	if network == "" || network == "redis" {
		network = "tcp"
	}

	return &redis.Options{
		Network:  network,
		Addr:     u.Host,
		Password: passwd,
		DB:       db,
	}, nil
}

func (rs *RedisStore) PutBreakerStatus(ctx context.Context, status BreakerStatus) error {
	if status.Service == "" {
		return fmt.Errorf("breaker status without service name")
	}

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal breaker status: %w", err)
	}

	pipe := rs.client.TxPipeline()
	pipe.HSet(ctx, breakerStatusKey, statusField(status.Instance, status.Service), data)
	pipe.Expire(ctx, breakerStatusKey, rs.opts.DefaultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store breaker status: %w", err)
	}
	return nil
}

// BreakerStatuses returns every entry updated within the store TTL
func (rs *RedisStore) BreakerStatuses(ctx context.Context) ([]BreakerStatus, error) {
	raw, err := rs.client.HGetAll(ctx, breakerStatusKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get breaker statuses from Redis: %w", err)
	}

	cutoff := rs.now().Add(-rs.opts.DefaultTTL)
	out := make([]BreakerStatus, 0, len(raw))
	var stale []string
	for field, data := range raw {
		var status BreakerStatus
		if err := json.Unmarshal([]byte(data), &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal breaker status %s: %w", field, err)
		}
		if status.UpdatedAt.Before(cutoff) {
			stale = append(stale, field)
			continue
		}
		out = append(out, status)
	}

	if len(stale) > 0 {
		// Instances that stopped publishing leave entries behind
		_ = rs.client.HDel(ctx, breakerStatusKey, stale...).Err()
	}

	sortStatuses(out)
	return out, nil
}

func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

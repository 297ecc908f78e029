package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/config"
)

const redisPingTimeout = 3 * time.Second

// Redis holds the client shared by the snapshot sink and the delivery stream.
// Every key and stream topic is namespaced with the configured prefix so
// several routers can share one server.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis connects using cfg. A comma-separated Addr selects a cluster, and
// MasterName selects a sentinel failover client.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      splitAddrs(cfg.Addr),
		MasterName: cfg.MasterName,
		Password:   cfg.Password,
		DB:         cfg.DB,
	})
	r := NewRedisWithClient(client, cfg.KeyPrefix)

	if err := r.Ping(ctx); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.String("key_prefix", cfg.KeyPrefix))
	}
	return r
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Client exposes the underlying client.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// Key returns name inside the configured namespace.
func (r *Redis) Key(name string) string {
	if r.prefix == "" || strings.HasPrefix(name, r.prefix) {
		return name
	}
	return r.prefix + name
}

// SnapshotSink stores router snapshots under the namespaced key.
func (r *Redis) SnapshotSink(key string) *RedisSink {
	return NewRedisSink(r.client, r.Key(key))
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.client != nil {
		_ = r.client.Close()
	}
}

// Ping verifies Redis connectivity within a bounded time.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return errors.New("redis client not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func splitAddrs(raw string) []string {
	var addrs []string
	for _, a := range strings.Split(raw, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

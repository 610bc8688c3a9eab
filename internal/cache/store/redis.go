package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"Friday_1.0/internal/config"
)

// Redis 将缓存记录以 JSON 值的形式保存在 Redis 中。
// 记录的过期时间直接交给 Redis 的原生 TTL 处理。
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis 创建 Redis 持久层，并使用 Ping 检查连接是否成功。
func NewRedis(cfg config.RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("无法连接到 Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "friday:cache:"
	}
	return &Redis{client: rdb, prefix: prefix}, nil
}

// Get 读取一条记录；键不存在时返回 ErrNotFound。
func (r *Redis) Get(ctx context.Context, key string) (*Record, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// 损坏的记录直接丢弃，当作未命中处理
		_ = r.client.Del(ctx, r.prefix+key).Err()
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Set 写入一条记录，过期时间映射为 Redis 键的 TTL。
func (r *Redis) Set(ctx context.Context, key string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cache record: %w", err)
	}

	var ttl time.Duration
	if !rec.ExpiresAt.IsZero() {
		ttl = time.Until(rec.ExpiresAt)
		if ttl <= 0 {
			// 已经过期的记录没有写入价值
			return nil
		}
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete 删除一条记录；键不存在时不视为错误。
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// PruneExpired 对 Redis 是空操作，键到期后由服务端自动清除。
func (r *Redis) PruneExpired(_ context.Context) (int, error) {
	return 0, nil
}

// Len 返回带前缀的键数量。
func (r *Redis) Len(ctx context.Context) (int, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// SizeBytes 返回所有记录值占用的字节数。
func (r *Redis) SizeBytes(ctx context.Context) (int64, error) {
	keys, err := r.keys(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, key := range keys {
		n, err := r.client.StrLen(ctx, key).Result()
		if err != nil {
			continue
		}
		total += n
	}
	return total, nil
}

// Close 关闭 Redis 连接。
func (r *Redis) Close() error {
	return r.client.Close()
}

// keys 使用 SCAN 遍历所有带前缀的键，避免阻塞服务端。
func (r *Redis) keys(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}
		out = append(out, batch...)
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}

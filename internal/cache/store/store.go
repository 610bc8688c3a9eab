package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 表示持久层中不存在请求的记录。
var ErrNotFound = errors.New("store: record not found")

// Record 是持久层中的一条缓存记录。
// Content 可能已被 gzip 压缩，由 Compressed 标记区分。
type Record struct {
	Key         string    `json:"key"`                   // 缓存键
	Content     []byte    `json:"content"`               // 记录内容（可能已压缩）
	Compressed  bool      `json:"compressed"`            // Content 是否经过 gzip 压缩
	SizeBytes   int       `json:"sizeBytes"`             // 压缩前的内容字节数
	Fingerprint string    `json:"fingerprint,omitempty"` // 来源文件的指纹，用于失效判断
	CreatedAt   time.Time `json:"createdAt"`             // 记录创建时间
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`   // 过期时间；零值表示永不过期
}

// Expired 判断记录在给定时间点是否已过期。
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Store 是缓存持久层的统一接口。
// 实现必须可以被多个 goroutine 并发使用。
type Store interface {
	// Get 返回键对应的记录；记录不存在或已过期时返回 ErrNotFound。
	Get(ctx context.Context, key string) (*Record, error)
	// Set 写入或覆盖一条记录。
	Set(ctx context.Context, key string, rec *Record) error
	// Delete 删除一条记录；键不存在时不视为错误。
	Delete(ctx context.Context, key string) error
	// PruneExpired 清除已过期的记录，返回清除数量。
	// 对于自带 TTL 能力的后端可以直接返回 0。
	PruneExpired(ctx context.Context) (int, error)
	// Len 返回当前记录数量。
	Len(ctx context.Context) (int, error)
	// SizeBytes 返回所有记录占用的存储字节数。
	SizeBytes(ctx context.Context) (int64, error)
	// Close 释放后端资源。
	Close() error
}

package store

import (
	"fmt"

	"Friday_1.0/internal/config"
)

// New 是一个工厂函数，根据提供的配置创建并返回一个实现了 Store 接口的持久层。
// backend 为 "none" 或空字符串时返回 nil，表示不启用持久层。
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "disk":
		return NewDisk(cfg.Disk)
	case "redis":
		return NewRedis(cfg.Redis)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache store backend: %s", cfg.Backend)
	}
}

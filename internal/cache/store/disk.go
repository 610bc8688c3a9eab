package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"Friday_1.0/internal/config"
)

// recordExt 是磁盘记录文件的扩展名。
const recordExt = ".json"

// Disk 将每条缓存记录保存为目录下的一个 JSON 文件。
// 目录占用超过上限时按文件修改时间淘汰最旧的记录。
type Disk struct {
	dir      string
	maxBytes int64
	mu       sync.Mutex // 保护写入与淘汰之间的竞争
}

// NewDisk 创建磁盘持久层，目录不存在时自动创建。
func NewDisk(cfg config.DiskStoreConfig) (*Disk, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("disk store requires a directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("无法创建缓存目录 '%s': %w", cfg.Dir, err)
	}
	return &Disk{dir: cfg.Dir, maxBytes: cfg.MaxBytes}, nil
}

// Get 读取一条记录；文件不存在或记录已过期时返回 ErrNotFound。
func (d *Disk) Get(_ context.Context, key string) (*Record, error) {
	path, err := d.recordPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read cache record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// 损坏的记录直接丢弃，当作未命中处理
		_ = os.Remove(path)
		return nil, ErrNotFound
	}
	if rec.Expired(time.Now()) {
		_ = os.Remove(path)
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Set 以"写临时文件再改名"的方式原子地写入记录，随后按需要淘汰最旧文件。
func (d *Disk) Set(_ context.Context, key string, rec *Record) error {
	path, err := d.recordPath(key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cache record: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit cache record: %w", err)
	}

	return d.pruneOverBudgetLocked()
}

// Delete 删除一条记录；键不存在时不视为错误。
func (d *Disk) Delete(_ context.Context, key string) error {
	path, err := d.recordPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete cache record: %w", err)
	}
	return nil
}

// PruneExpired 扫描目录并清除所有已过期的记录。
func (d *Disk) PruneExpired(_ context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.listRecords()
	if err != nil {
		return 0, err
	}

	now := time.Now()
	removed := 0
	for _, entry := range entries {
		data, err := os.ReadFile(entry.path)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil || rec.Expired(now) {
			if os.Remove(entry.path) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Len 返回当前记录文件的数量。
func (d *Disk) Len(_ context.Context) (int, error) {
	entries, err := d.listRecords()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// SizeBytes 返回所有记录文件占用的字节数。
func (d *Disk) SizeBytes(_ context.Context) (int64, error) {
	entries, err := d.listRecords()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		total += entry.size
	}
	return total, nil
}

// Close 对磁盘后端是空操作。
func (d *Disk) Close() error {
	return nil
}

// recordPath 将缓存键映射到记录文件路径。
// 键由缓存层生成（十六进制摘要），这里仍然拒绝任何可疑字符。
func (d *Disk) recordPath(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\.`) {
		return "", fmt.Errorf("invalid cache key: %q", key)
	}
	return filepath.Join(d.dir, key+recordExt), nil
}

type diskEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// listRecords 返回目录下所有记录文件的元信息。
func (d *Disk) listRecords() ([]diskEntry, error) {
	dirEntries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("list cache dir: %w", err)
	}

	records := make([]diskEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), recordExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		records = append(records, diskEntry{
			path:    filepath.Join(d.dir, de.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return records, nil
}

// pruneOverBudgetLocked 在目录超出字节上限时按最旧优先删除记录。
// 调用方必须持有 d.mu。
func (d *Disk) pruneOverBudgetLocked() error {
	if d.maxBytes <= 0 {
		return nil
	}

	entries, err := d.listRecords()
	if err != nil {
		return err
	}

	var total int64
	for _, entry := range entries {
		total += entry.size
	}
	if total <= d.maxBytes {
		return nil
	}

	// 最旧的记录先被淘汰
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})
	for _, entry := range entries {
		if total <= d.maxBytes {
			break
		}
		if err := os.Remove(entry.path); err == nil {
			total -= entry.size
		}
	}
	return nil
}

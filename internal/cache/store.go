package cache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Backend 是缓存的物理承载，每个 App 通过 Storage 获得独立命名空间，
// 避免某个 App 激活时误删其他 App 的缓存代。
type Backend interface {
	Storage(app string) (Storage, error)
	Close() error
}

// Storage 管理单个 App 下的全部缓存代（store）。
type Storage interface {
	// Open 返回指定缓存代的句柄。物理存储在首次 Put 时才创建。
	Open(ctx context.Context, generation string) (Store, error)

	// Keys 列出已持久化的缓存代名称，按名称排序。
	Keys(ctx context.Context) ([]string, error)

	// Delete 删除整个缓存代，返回删除前是否存在。
	Delete(ctx context.Context, generation string) (bool, error)
}

// Store 是单个缓存代内 request key → Entry 的映射。
type Store interface {
	Name() string

	// Match 返回缓存条目，不存在时返回 ErrNotFound。
	Match(ctx context.Context, key string) (*Entry, error)

	// Put 覆盖写入条目，单个 key 的写入是原子的。
	Put(ctx context.Context, key string, entry Entry) error
}

// Entry 是一次完整响应的快照。Body 已全部读入内存，可重复构造响应。
type Entry struct {
	Key      string      `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"-"`
	StoredAt time.Time   `json:"stored_at"`
}

// Size 返回正文字节数。
func (e Entry) Size() int64 {
	return int64(len(e.Body))
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidName 表示 App 或缓存代名称不合法。
	ErrInvalidName = errors.New("invalid cache name")
)

const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

const sqliteFileName = "assetcache.db"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidName 校验 App/缓存代名称，名称会直接用作目录名。
func ValidName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return namePattern.MatchString(name)
}

func checkName(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// NewBackend 按 StorageBackend 配置构建存储后端，整个进程共享一个实例。
func NewBackend(kind, basePath string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", BackendFS:
		return NewFSBackend(basePath)
	case BackendSQLite:
		if basePath == "" {
			return nil, errors.New("storage path required")
		}
		return OpenSQLite(filepath.Join(basePath, sqliteFileName))
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", kind)
	}
}

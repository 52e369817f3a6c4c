package controller

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/assetcache/internal/assets"
	"github.com/any-hub/assetcache/internal/cache"
)

const (
	defaultWriteTimeout = 30 * time.Second
	defaultMaxEntrySize = 256 << 20
)

var (
	// ErrNotHandled 表示请求不归控制器管理（Unmanaged 或尚未激活），
	// 宿主应直接执行默认的网络请求。
	ErrNotHandled = errors.New("request not handled by controller")
	// ErrNetwork 表示网络请求失败且没有可用的缓存兜底。
	ErrNetwork = errors.New("network unavailable")
)

// Fetcher 执行真实的网络请求，*http.Client 即满足该接口。
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options 汇总构建 Controller 所需的依赖。
type Options struct {
	App          string
	Generation   string
	Rules        *assets.Rules
	Storage      cache.Storage
	Network      Fetcher
	Logger       *logrus.Logger
	WriteTimeout time.Duration
	MaxEntrySize int64
}

// Source 描述响应的来源，宿主会原样写入 X-Asset-Cache 头。
type Source string

const (
	SourceHit         Source = "hit"
	SourceMiss        Source = "miss"
	SourceRevalidated Source = "revalidated"
	SourceStale       Source = "stale"
)

// Result 是一次被接管请求的结果。Response.Body 归调用方所有，需要关闭。
type Result struct {
	Class    assets.Class
	Source   Source
	Response *http.Response
	// Stored 表示是否已调度一次缓存写入。
	Stored bool
}

// Controller 负责单个 App 的请求接管与缓存代管理。
type Controller struct {
	app          string
	generation   string
	rules        *assets.Rules
	storage      cache.Storage
	network      Fetcher
	logger       *logrus.Logger
	maxEntrySize int64
	writer       *writer
	now          func() time.Time

	mu    sync.RWMutex
	store cache.Store
}

// New 校验依赖并构建 Controller；返回的 Controller 需经 Activate 后才会接管请求。
func New(opts Options) (*Controller, error) {
	if opts.App == "" {
		return nil, errors.New("app name is required")
	}
	if !cache.ValidName(opts.Generation) {
		return nil, errors.New("valid generation is required")
	}
	if opts.Rules == nil {
		return nil, errors.New("rules are required")
	}
	if opts.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if opts.Network == nil {
		return nil, errors.New("network fetcher is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	timeout := opts.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	maxSize := opts.MaxEntrySize
	if maxSize <= 0 {
		maxSize = defaultMaxEntrySize
	}

	return &Controller{
		app:          opts.App,
		generation:   opts.Generation,
		rules:        opts.Rules,
		storage:      opts.Storage,
		network:      opts.Network,
		logger:       opts.Logger,
		maxEntrySize: maxSize,
		writer: &writer{
			app:     opts.App,
			logger:  opts.Logger,
			timeout: timeout,
		},
		now: time.Now,
	}, nil
}

// Intercept 对请求分类并执行对应策略。Unmanaged 或未激活时返回 ErrNotHandled；
// 无法兜底的网络失败返回包装了 ErrNetwork 的错误。
func (c *Controller) Intercept(ctx context.Context, req *http.Request) (*Result, error) {
	store := c.activeStore()
	if store == nil {
		return nil, ErrNotHandled
	}

	switch c.rules.Classify(req.Method, req.URL) {
	case assets.Immutable:
		return c.cacheFirst(ctx, store, req)
	case assets.Mutable:
		return c.staleWhileRevalidate(ctx, store, req)
	default:
		return nil, ErrNotHandled
	}
}

// Wait 阻塞直到所有已调度的缓存写入完成。
func (c *Controller) Wait() {
	c.writer.wait()
}

// App 返回控制器所属的 App 名称。
func (c *Controller) App() string {
	return c.app
}

// Generation 返回当前缓存代。
func (c *Controller) Generation() string {
	return c.generation
}

// Rules 返回编译后的分类规则。
func (c *Controller) Rules() *assets.Rules {
	return c.rules
}

// Active 表示控制器是否已激活并接管请求。
func (c *Controller) Active() bool {
	return c.activeStore() != nil
}

func (c *Controller) activeStore() cache.Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

func (c *Controller) claim(store cache.Store) {
	c.mu.Lock()
	c.store = store
	c.mu.Unlock()
}

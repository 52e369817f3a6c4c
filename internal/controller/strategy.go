package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/any-hub/assetcache/internal/assets"
	"github.com/any-hub/assetcache/internal/cache"
	"github.com/any-hub/assetcache/internal/logging"
)

// cacheFirst 处理内容寻址资源：命中直接返回，不再访问网络；未命中时回源，
// 仅成功响应写入缓存，避免错误页被永久固定在哈希路径下。
func (c *Controller) cacheFirst(ctx context.Context, store cache.Store, req *http.Request) (*Result, error) {
	key := RequestKey(req)
	if entry, ok := c.lookup(ctx, store, key); ok {
		return &Result{
			Class:    assets.Immutable,
			Source:   SourceHit,
			Response: entryResponse(entry, req),
		}, nil
	}

	resp, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return &Result{Class: assets.Immutable, Source: SourceMiss, Response: resp}, nil
	}

	out, entry, err := c.duplicate(resp, key)
	if err != nil {
		return nil, err
	}
	return &Result{
		Class:    assets.Immutable,
		Source:   SourceMiss,
		Response: out,
		Stored:   c.schedulePut(ctx, store, entry),
	}, nil
}

// staleWhileRevalidate 处理入口资源：有缓存时总是尝试刷新，网络失败或非 2xx
// 时回退到缓存；无缓存时首个成功抵达的响应无条件写入，作为离线种子。
func (c *Controller) staleWhileRevalidate(ctx context.Context, store cache.Store, req *http.Request) (*Result, error) {
	key := RequestKey(req)
	cached, hit := c.lookup(ctx, store, key)

	resp, err := c.fetch(ctx, req)
	if !hit {
		if err != nil {
			return nil, err
		}
		out, entry, err := c.duplicate(resp, key)
		if err != nil {
			return nil, err
		}
		return &Result{
			Class:    assets.Mutable,
			Source:   SourceMiss,
			Response: out,
			Stored:   c.schedulePut(ctx, store, entry),
		}, nil
	}

	if err != nil {
		c.logFallback(key, 0, err)
		return c.stale(cached, req), nil
	}
	if !isSuccess(resp.StatusCode) {
		discard(resp)
		c.logFallback(key, resp.StatusCode, nil)
		return c.stale(cached, req), nil
	}

	out, entry, err := c.duplicate(resp, key)
	if err != nil {
		c.logFallback(key, resp.StatusCode, err)
		return c.stale(cached, req), nil
	}
	return &Result{
		Class:    assets.Mutable,
		Source:   SourceRevalidated,
		Response: out,
		Stored:   c.schedulePut(ctx, store, entry),
	}, nil
}

func (c *Controller) stale(entry *cache.Entry, req *http.Request) *Result {
	return &Result{
		Class:    assets.Mutable,
		Source:   SourceStale,
		Response: entryResponse(entry, req),
	}
}

// lookup 把读取失败视同未命中，仅记录告警。
func (c *Controller) lookup(ctx context.Context, store cache.Store, key string) (*cache.Entry, bool) {
	entry, err := store.Match(ctx, key)
	switch {
	case err == nil:
		return entry, true
	case errors.Is(err, cache.ErrNotFound):
	default:
		c.logger.WithError(err).
			WithFields(logging.RequestFields(c.app, store.Name(), "", key)).
			Warn("cache_match_failed")
	}
	return nil, false
}

// validatorHeaders 会让上游返回 304/206；托管请求需要完整正文才能入缓存。
var validatorHeaders = []string{
	"If-None-Match",
	"If-Modified-Since",
	"If-Match",
	"If-Unmodified-Since",
	"If-Range",
	"Range",
}

// fetch 使用请求上下文发起网络请求；任何失败（含超时、取消）都视为网络不可用。
func (c *Controller) fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	for _, name := range validatorHeaders {
		out.Header.Del(name)
	}
	resp, err := c.network.Do(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return resp, nil
}

func (c *Controller) schedulePut(ctx context.Context, store cache.Store, entry *cache.Entry) bool {
	if entry == nil {
		c.logger.WithFields(logging.RequestFields(c.app, store.Name(), "", "")).
			WithField("max_entry_size", c.maxEntrySize).
			Debug("cache_put_skipped")
		return false
	}
	c.writer.put(ctx, store, *entry)
	return true
}

func (c *Controller) logFallback(key string, status int, err error) {
	fields := logging.RequestFields(c.app, c.generation, string(assets.Mutable), key)
	fields["action"] = "revalidate"
	fields["upstream_status"] = status
	entry := c.logger.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("network_fallback")
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

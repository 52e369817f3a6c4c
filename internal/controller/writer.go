package controller

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/assetcache/internal/cache"
	"github.com/any-hub/assetcache/internal/logging"
)

// writer 承担“写后不等”的缓存写入：每次写入在独立 goroutine 中执行，
// 上下文与请求的取消信号解耦，只受 timeout 约束。失败仅记录日志。
type writer struct {
	app     string
	logger  *logrus.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func (w *writer) put(ctx context.Context, store cache.Store, entry cache.Entry) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
		defer cancel()

		fields := logging.RequestFields(w.app, store.Name(), "", entry.Key)
		fields["action"] = "cache_put"
		if err := store.Put(writeCtx, entry.Key, entry); err != nil {
			w.logger.WithError(err).WithFields(fields).Warn("cache_put_failed")
			return
		}
		fields["size_bytes"] = entry.Size()
		fields["status"] = entry.Status
		w.logger.WithFields(fields).Debug("cache_put_complete")
	}()
}

func (w *writer) wait() {
	w.wg.Wait()
}

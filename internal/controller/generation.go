package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/any-hub/assetcache/internal/logging"
)

// maxConcurrentDeletes 限制同时删除的旧缓存代数量。
const maxConcurrentDeletes = 4

// ActivationReport 汇总一次激活的清理结果。
type ActivationReport struct {
	App        string            `json:"app"`
	Generation string            `json:"generation"`
	Found      []string          `json:"found"`
	Deleted    []string          `json:"deleted"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// Activate 打开当前缓存代并立即接管请求，随后并发删除其他所有缓存代。
// 删除失败不影响激活结果，只记录在报告中，待下次激活重试。
// 仅当当前缓存代无法打开时返回错误，此时控制器保持原状态。
func (c *Controller) Activate(ctx context.Context) (*ActivationReport, error) {
	store, err := c.storage.Open(ctx, c.generation)
	if err != nil {
		return nil, fmt.Errorf("open generation %s: %w", c.generation, err)
	}
	c.claim(store)

	report := &ActivationReport{
		App:        c.app,
		Generation: c.generation,
		Deleted:    []string{},
	}

	names, err := c.storage.Keys(ctx)
	if err != nil {
		c.logger.WithError(err).
			WithFields(logging.GenerationFields("activate", c.app, c.generation)).
			Warn("generation_list_failed")
		report.Failed = map[string]string{"*": err.Error()}
		return report, nil
	}
	report.Found = names

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(maxConcurrentDeletes)
	for _, name := range names {
		if name == c.generation {
			continue
		}
		g.Go(func() error {
			deleted, err := c.storage.Delete(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if report.Failed == nil {
					report.Failed = make(map[string]string)
				}
				report.Failed[name] = err.Error()
				c.logger.WithError(err).
					WithFields(logging.GenerationFields("activate", c.app, name)).
					Warn("generation_delete_failed")
				return nil
			}
			if deleted {
				report.Deleted = append(report.Deleted, name)
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(report.Deleted)

	fields := logging.GenerationFields("activate", c.app, c.generation)
	fields["found"] = len(report.Found)
	fields["deleted"] = report.Deleted
	fields["failed"] = len(report.Failed)
	c.logger.WithFields(fields).Info("generation_activated")
	return report, nil
}

// Generations 列出该 App 当前持久化的缓存代。
func (c *Controller) Generations(ctx context.Context) ([]string, error) {
	return c.storage.Keys(ctx)
}

package proxy

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/any-hub/assetcache/internal/controller"
)

// Activate 并发激活所有 App。单个 App 打开当前缓存代失败会返回错误，
// 但不会阻止其它 App 完成激活；已激活的控制器继续接管请求。
func (h *Handler) Activate(ctx context.Context) ([]*controller.ActivationReport, error) {
	reports := make([]*controller.ActivationReport, len(h.ordered))

	var g errgroup.Group
	for i, state := range h.ordered {
		g.Go(func() error {
			report, err := state.ctrl.Activate(ctx)
			if err != nil {
				return fmt.Errorf("activate %s: %w", state.ctrl.App(), err)
			}
			reports[i] = report
			return nil
		})
	}
	err := g.Wait()
	return reports, err
}

package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/assetcache/internal/assets"
	"github.com/any-hub/assetcache/internal/cache"
	"github.com/any-hub/assetcache/internal/controller"
	"github.com/any-hub/assetcache/internal/logging"
	"github.com/any-hub/assetcache/internal/server"
)

// Options 汇总构建 Handler 所需的共享依赖。
type Options struct {
	Registry     *server.AppRegistry
	Backend      cache.Backend
	Client       *http.Client
	Logger       *logrus.Logger
	WriteTimeout time.Duration
	MaxEntrySize int64
}

// Handler 是控制器的 HTTP 宿主：把 Fiber 请求转换为拦截请求交给对应 App 的
// Controller，未托管的请求直接透传到回源地址。
type Handler struct {
	logger  *logrus.Logger
	apps    map[string]*appState
	ordered []*appState
}

type appState struct {
	route   *server.AppRoute
	ctrl    *controller.Controller
	network *upstreamFetcher
}

// NewHandler 为注册表中的每个 App 构建 Controller。返回的控制器均未激活，需调用 Activate。
func NewHandler(opts Options) (*Handler, error) {
	if opts.Registry == nil {
		return nil, errors.New("app registry is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("cache backend is required")
	}
	if opts.Client == nil {
		return nil, errors.New("http client is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}

	h := &Handler{
		logger: opts.Logger,
		apps:   make(map[string]*appState),
	}
	for _, route := range opts.Registry.List() {
		storage, err := opts.Backend.Storage(route.Config.Name)
		if err != nil {
			return nil, fmt.Errorf("app %s: %w", route.Config.Name, err)
		}
		network := newUpstreamFetcher(opts.Client, route)
		ctrl, err := controller.New(controller.Options{
			App:          route.Config.Name,
			Generation:   route.Config.Generation,
			Rules:        route.Rules,
			Storage:      storage,
			Network:      network,
			Logger:       opts.Logger,
			WriteTimeout: opts.WriteTimeout,
			MaxEntrySize: opts.MaxEntrySize,
		})
		if err != nil {
			return nil, fmt.Errorf("app %s: %w", route.Config.Name, err)
		}
		state := &appState{route: route, ctrl: ctrl, network: network}
		h.apps[route.Config.Name] = state
		h.ordered = append(h.ordered, state)
	}
	return h, nil
}

// Handle 实现 server.ProxyHandler。
func (h *Handler) Handle(c fiber.Ctx, route *server.AppRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)

	state, ok := h.apps[route.Config.Name]
	if !ok {
		return writeError(c, fiber.StatusInternalServerError, "app_not_loaded")
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := buildInterceptRequest(ctx, c, route)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "bad_request")
	}

	res, err := state.ctrl.Intercept(ctx, req)
	switch {
	case errors.Is(err, controller.ErrNotHandled):
		return h.passthrough(c, state, req, requestID, started)
	case err != nil:
		fields := h.requestFields(state, req, assets.Unmanaged, requestID, started)
		fields["class"] = string(state.route.Rules.Classify(req.Method, req.URL))
		h.logger.WithError(err).WithFields(fields).Error("intercept_failed")
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	return h.writeResult(c, state, req, res, requestID, started)
}

func (h *Handler) writeResult(
	c fiber.Ctx,
	state *appState,
	req *http.Request,
	res *controller.Result,
	requestID string,
	started time.Time,
) error {
	resp := res.Response
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Set("X-Asset-Cache", string(res.Source))
	c.Set("X-Asset-Class", string(res.Class))
	c.Set("X-Asset-Generation", state.ctrl.Generation())
	c.Status(resp.StatusCode)

	_, err := io.Copy(c.Response().BodyWriter(), resp.Body)

	fields := h.requestFields(state, req, res.Class, requestID, started)
	fields["source"] = string(res.Source)
	fields["status"] = resp.StatusCode
	fields["stored"] = res.Stored
	if err != nil {
		h.logger.WithError(err).WithFields(fields).Error("intercept_failed")
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("stream response failed: %v", err))
	}
	h.logger.WithFields(fields).Info("intercept_complete")
	return nil
}

// passthrough 对未托管的请求执行宿主默认的网络行为，不读写缓存。
func (h *Handler) passthrough(c fiber.Ctx, state *appState, req *http.Request, requestID string, started time.Time) error {
	fields := h.requestFields(state, req, assets.Unmanaged, requestID, started)

	resp, err := state.network.Do(req)
	if err != nil {
		h.logger.WithError(err).WithFields(fields).Error("passthrough_failed")
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Set("X-Asset-Class", string(assets.Unmanaged))
	c.Status(resp.StatusCode)

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	fields["status"] = resp.StatusCode
	if err != nil {
		h.logger.WithError(err).WithFields(fields).Error("passthrough_failed")
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	h.logger.WithFields(fields).Debug("passthrough_complete")
	return nil
}

// Controller 返回指定 App 的控制器，供诊断接口使用。
func (h *Handler) Controller(name string) (*controller.Controller, bool) {
	state, ok := h.apps[name]
	if !ok {
		return nil, false
	}
	return state.ctrl, true
}

// Controllers 按配置顺序返回所有控制器。
func (h *Handler) Controllers() []*controller.Controller {
	result := make([]*controller.Controller, len(h.ordered))
	for i, state := range h.ordered {
		result[i] = state.ctrl
	}
	return result
}

// Wait 等待所有 App 已调度的缓存写入完成，用于优雅退出。
func (h *Handler) Wait() {
	for _, state := range h.ordered {
		state.ctrl.Wait()
	}
}

func (h *Handler) requestFields(state *appState, req *http.Request, class assets.Class, requestID string, started time.Time) logrus.Fields {
	fields := logging.RequestFields(state.ctrl.App(), state.ctrl.Generation(), string(class), controller.RequestKey(req))
	fields["action"] = "intercept"
	fields["method"] = req.Method
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}

// buildInterceptRequest 以 App 的 Origin 为基准构造浏览器视角的绝对 URL 请求。
// Accept-Encoding 被移除，交由 http.Client 透明解压，缓存中保存的总是原始正文。
func buildInterceptRequest(ctx context.Context, c fiber.Ctx, route *server.AppRoute) (*http.Request, error) {
	uri := c.Request().URI()
	target := *route.OriginURL
	target.Path = string(uri.Path())
	if target.Path == "" {
		target.Path = "/"
	}
	target.RawPath = ""
	target.RawQuery = string(uri.QueryString())
	target.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, c.Method(), target.String(), bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}
	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Host")
	req.Header.Del("Accept-Encoding")
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	return req, nil
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

// copyResponseHeaders 透传上游/缓存响应头；Content-Length 由 fasthttp 按实际正文重算。
func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		for i, value := range values {
			if i == 0 {
				c.Set(key, value)
				continue
			}
			c.Append(key, value)
		}
	}
}

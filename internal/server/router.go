package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler serves requests whose Host resolved to an application.
// Tests inject fakes through ProxyHandlerFunc.
type ProxyHandler interface {
	Handle(fiber.Ctx, *AppRoute) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, *AppRoute) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, route *AppRoute) error {
	return f(c, route)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *AppRegistry
	Proxy      ProxyHandler
	ListenPort int
	// Diagnostics registers /-/ routes before the catch-all handler.
	Diagnostics func(fiber.Router)
}

const (
	diagnosticsPrefix = "/-"

	localsRoute     = "_assetcache_route"
	localsRequestID = "_assetcache_request_id"

	headerRequestID = "X-Request-ID"
	headerAssetHost = "X-Asset-Host"
)

// hostRouter 将 Host 解析为 AppRoute，并把请求交给 ProxyHandler。
type hostRouter struct {
	registry *AppRegistry
	proxy    ProxyHandler
	logger   *logrus.Logger
	port     int
}

// NewApp builds a Fiber application with Host routing middleware, optional
// diagnostics routes and structured error responses.
func NewApp(opts AppOptions) (*fiber.App, error) {
	switch {
	case opts.Logger == nil:
		return nil, errors.New("logger is required")
	case opts.Registry == nil:
		return nil, errors.New("app registry is required")
	case opts.Proxy == nil:
		return nil, errors.New("proxy handler is required")
	case opts.ListenPort <= 0:
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	router := &hostRouter{
		registry: opts.Registry,
		proxy:    opts.Proxy,
		logger:   opts.Logger,
		port:     opts.ListenPort,
	}

	app := fiber.New(fiber.Config{CaseSensitive: true})
	app.Use(recover.New())
	app.Use(router.resolve)

	if opts.Diagnostics != nil {
		opts.Diagnostics(app.Group(diagnosticsPrefix))
	}
	app.All("/*", router.dispatch)

	return app, nil
}

// resolve 分配请求 ID；非诊断路径按 Host 查找 AppRoute，未命中直接 404。
func (r *hostRouter) resolve(c fiber.Ctx) error {
	reqID := incomingRequestID(c)
	c.Locals(localsRequestID, reqID)
	c.Set(headerRequestID, reqID)

	if isDiagnosticsPath(c.Path()) {
		return c.Next()
	}

	host := strings.TrimSpace(hostHeader(c))
	route, ok := r.registry.Lookup(host)
	if !ok {
		return r.unmapped(c, host)
	}
	c.Locals(localsRoute, route)
	return c.Next()
}

func (r *hostRouter) dispatch(c fiber.Ctx) error {
	if isDiagnosticsPath(c.Path()) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}
	route, ok := RouteOf(c)
	if !ok {
		return r.unmapped(c, "")
	}
	return r.proxy.Handle(c, route)
}

func (r *hostRouter) unmapped(c fiber.Ctx, host string) error {
	r.logger.WithFields(logrus.Fields{
		"action": "host_lookup",
		"host":   host,
		"port":   r.port,
	}).Warn("host unmapped")

	if host != "" {
		c.Set(headerAssetHost, host)
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "host_unmapped"})
}

// incomingRequestID 沿用上游注入的合法 UUID，否则重新生成。
func incomingRequestID(c fiber.Ctx) string {
	if raw := strings.TrimSpace(c.Get(headerRequestID)); raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			return parsed.String()
		}
	}
	return uuid.NewString()
}

func hostHeader(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return string(raw)
	}
	return c.Hostname()
}

// RouteOf returns the AppRoute resolved for the current request.
func RouteOf(c fiber.Ctx) (*AppRoute, bool) {
	route, ok := c.Locals(localsRoute).(*AppRoute)
	return route, ok && route != nil
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	reqID, _ := c.Locals(localsRequestID).(string)
	return reqID
}

// isDiagnosticsPath 判断是否落在保留前缀 /-/ 下，该前缀对所有 Host 生效。
func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, diagnosticsPrefix+"/")
}

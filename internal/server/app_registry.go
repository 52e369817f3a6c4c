package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/any-hub/assetcache/internal/assets"
	"github.com/any-hub/assetcache/internal/config"
	"github.com/any-hub/assetcache/internal/preset"
)

// AppRoute 将 App 配置与派生属性（解析后的 Origin/Upstream/Proxy URL、编译后的规则）
// 聚合在一起，供路由/代理层直接复用，避免重复解析配置。
type AppRoute struct {
	// Config 是用户在 config.toml 中声明的 App 字段副本。
	Config config.AppConfig
	// ListenPort 记录当前 CLI 监听端口，用于 X-Forwarded-Port。
	ListenPort int
	// OriginURL 是浏览器看到的站点地址，拦截请求的绝对 URL 以它为基准。
	OriginURL   *url.URL
	UpstreamURL *url.URL
	ProxyURL    *url.URL
	Preset      preset.Preset
	Rules       *assets.Rules
}

// AppRegistry 提供 Host/Host:port 到 AppRoute 的查询能力，所有 App 共享同一个监听端口。
type AppRegistry struct {
	routes  map[string]*AppRoute
	byName  map[string]*AppRoute
	ordered []*AppRoute
}

// NewAppRegistry 根据配置构建 Host 映射。调用方应在启动阶段创建一次并复用。
func NewAppRegistry(cfg *config.Config) (*AppRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &AppRegistry{
		routes: make(map[string]*AppRoute, len(cfg.Apps)),
		byName: make(map[string]*AppRoute, len(cfg.Apps)),
	}

	for _, app := range cfg.Apps {
		route, err := buildAppRoute(cfg, app)
		if err != nil {
			return nil, err
		}

		host, _ := normalizeHost(route.OriginURL.Host)
		if host == "" {
			return nil, fmt.Errorf("invalid origin for app %s", app.Name)
		}
		if _, exists := registry.routes[host]; exists {
			return nil, fmt.Errorf("duplicate host mapping detected for %s", host)
		}
		if _, exists := registry.byName[app.Name]; exists {
			return nil, fmt.Errorf("duplicate app name %s", app.Name)
		}

		registry.routes[host] = route
		registry.byName[app.Name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据 Host 或 Host:port 查找 AppRoute，端口部分会被忽略。
func (r *AppRegistry) Lookup(host string) (*AppRoute, bool) {
	if r == nil {
		return nil, false
	}

	normalizedHost, _ := normalizeHost(host)
	if normalizedHost == "" {
		return nil, false
	}

	route, ok := r.routes[normalizedHost]
	return route, ok
}

// Get 按 App 名称查找，供诊断接口使用。
func (r *AppRegistry) Get(name string) (*AppRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.byName[name]
	return route, ok
}

// List 返回按配置顺序排列的 AppRoute。
func (r *AppRegistry) List() []*AppRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	return append([]*AppRoute(nil), r.ordered...)
}

func buildAppRoute(cfg *config.Config, app config.AppConfig) (*AppRoute, error) {
	runtime, err := config.BuildAppRuntime(app)
	if err != nil {
		return nil, err
	}

	originURL, err := url.Parse(app.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin for app %s: %w", app.Name, err)
	}
	upstreamURL, err := url.Parse(app.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream for app %s: %w", app.Name, err)
	}

	var proxyURL *url.URL
	if app.Proxy != "" {
		proxyURL, err = url.Parse(app.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy for app %s: %w", app.Name, err)
		}
	}

	return &AppRoute{
		Config:      app,
		ListenPort:  cfg.Global.ListenPort,
		OriginURL:   originURL,
		UpstreamURL: upstreamURL,
		ProxyURL:    proxyURL,
		Preset:      runtime.Preset,
		Rules:       runtime.Rules,
	}, nil
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}

package proxy

import (
	"net/http"
	"strconv"

	"github.com/any-hub/assetcache/internal/server"
)

// upstreamFetcher 是控制器看到的“网络”：把 Origin 视角的请求改写到回源地址，
// 并补齐 X-Forwarded-* 头。每个 App 一个实例，Proxy 配置在构造时固化。
type upstreamFetcher struct {
	route  *server.AppRoute
	client *http.Client
}

func newUpstreamFetcher(base *http.Client, route *server.AppRoute) *upstreamFetcher {
	return &upstreamFetcher{
		route:  route,
		client: server.ClientForRoute(base, route),
	}
}

// Do 实现 controller.Fetcher。入参不会被修改。
func (f *upstreamFetcher) Do(req *http.Request) (*http.Response, error) {
	target := server.RewriteToUpstream(f.route, req.URL)

	out := req.Clone(req.Context())
	out.URL = target
	out.Host = target.Host
	out.RequestURI = ""
	out.Header = make(http.Header, len(req.Header))
	server.CopyHeaders(out.Header, req.Header)
	out.Header.Del("Accept-Encoding")
	out.Header.Set("X-Forwarded-Host", req.Host)
	out.Header.Set("X-Forwarded-Proto", req.URL.Scheme)
	if f.route.ListenPort > 0 {
		out.Header.Set("X-Forwarded-Port", strconv.Itoa(f.route.ListenPort))
	}
	return f.client.Do(out)
}

package assets

import (
	"net/http"
	"net/url"
)

// Class 是请求的缓存分类。
type Class string

const (
	Unmanaged Class = "unmanaged"
	Immutable Class = "immutable"
	Mutable   Class = "mutable"
)

// Classify 对请求做一次确定性分类；非 GET、跨源请求一律 Unmanaged。
func (r *Rules) Classify(method string, u *url.URL) Class {
	if r == nil || u == nil || method != http.MethodGet {
		return Unmanaged
	}
	if !r.SameOrigin(u) {
		return Unmanaged
	}

	p := u.Path
	if p == "" {
		p = "/"
	}
	if r.isMutable(p) {
		return Mutable
	}
	for _, re := range r.immutable {
		if re.MatchString(p) {
			return Immutable
		}
	}
	return Unmanaged
}

// SameOrigin 比较 scheme、host 与端口（缺省端口按 scheme 补全）。
func (r *Rules) SameOrigin(u *url.URL) bool {
	if u == nil || u.Host == "" {
		return false
	}
	return originOf(u) == r.origin
}

// isMutable 精确匹配入口路径，或匹配 /<variant><入口路径>。
func (r *Rules) isMutable(p string) bool {
	if _, ok := r.mutable[p]; ok {
		return true
	}
	for _, v := range r.variants {
		prefix := "/" + v
		if len(p) <= len(prefix) || p[:len(prefix)] != prefix || p[len(prefix)] != '/' {
			continue
		}
		if _, ok := r.mutable[p[len(prefix):]]; ok {
			return true
		}
	}
	return false
}

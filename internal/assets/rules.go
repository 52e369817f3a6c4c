package assets

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// DefaultHashLength 与 trunk 输出的 16 位十六进制哈希一致。
const DefaultHashLength = 16

const (
	hashPlaceholder  = "{hash}"
	cratePlaceholder = "{crate}"
)

var placeholderPattern = regexp.MustCompile(`\{(hash|crate)\}`)

// RuleSet 是未编译的规则来源，通常由 preset 与 App 配置合并而来。
type RuleSet struct {
	Origin            string
	MutablePaths      []string
	ImmutablePatterns []string
	Variants          []string
	HashLength        int
	Crate             string
}

// Rules 是编译后的只读规则集，可被任意数量的请求并发读取。
type Rules struct {
	origin    string
	mutable   map[string]struct{}
	variants  []string
	immutable []*regexp.Regexp
	summary   Summary
}

// Summary 用于诊断输出，保留规则的原始写法。
type Summary struct {
	Origin            string   `json:"origin"`
	MutablePaths      []string `json:"mutable_paths"`
	ImmutablePatterns []string `json:"immutable_patterns"`
	Variants          []string `json:"variants"`
	HashLength        int      `json:"hash_length"`
}

// Compile 校验并编译规则集。Origin 必须是 http/https 绝对地址。
func Compile(set RuleSet) (*Rules, error) {
	origin, err := parseOrigin(set.Origin)
	if err != nil {
		return nil, err
	}

	hashLen := set.HashLength
	if hashLen == 0 {
		hashLen = DefaultHashLength
	}
	if hashLen < 0 || hashLen > 64 {
		return nil, fmt.Errorf("hash length out of range: %d", hashLen)
	}

	variants, err := normalizeVariants(set.Variants)
	if err != nil {
		return nil, err
	}

	rules := &Rules{
		origin:   origin,
		mutable:  make(map[string]struct{}, len(set.MutablePaths)),
		variants: variants,
	}

	for _, p := range set.MutablePaths {
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("mutable path must start with /: %q", p)
		}
		if _, dup := rules.mutable[p]; dup {
			continue
		}
		rules.mutable[p] = struct{}{}
		rules.summary.MutablePaths = append(rules.summary.MutablePaths, p)
	}

	for _, pattern := range set.ImmutablePatterns {
		re, err := compilePattern(pattern, variants, hashLen, set.Crate)
		if err != nil {
			return nil, err
		}
		rules.immutable = append(rules.immutable, re)
		rules.summary.ImmutablePatterns = append(rules.summary.ImmutablePatterns, pattern)
	}

	rules.summary.Origin = origin
	rules.summary.Variants = append([]string(nil), variants...)
	rules.summary.HashLength = hashLen
	return rules, nil
}

// Origin 返回规范化后的 scheme://host:port。
func (r *Rules) Origin() string {
	return r.origin
}

// Summary 返回规则的诊断视图。
func (r *Rules) Summary() Summary {
	s := r.summary
	s.MutablePaths = append([]string(nil), s.MutablePaths...)
	s.ImmutablePatterns = append([]string(nil), s.ImmutablePatterns...)
	s.Variants = append([]string(nil), s.Variants...)
	return s
}

// compilePattern 将 "/{crate}-{hash}.js" 形式的模式编译为锚定的正则，
// 变体目录作为可选前缀段。
func compilePattern(pattern string, variants []string, hashLen int, crate string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("immutable pattern must start with /: %q", pattern)
	}
	if n := strings.Count(pattern, hashPlaceholder); n != 1 {
		return nil, fmt.Errorf("immutable pattern must contain %s exactly once: %q", hashPlaceholder, pattern)
	}
	if strings.Contains(pattern, cratePlaceholder) && crate == "" {
		return nil, fmt.Errorf("immutable pattern %q requires a crate name", pattern)
	}

	var b strings.Builder
	b.WriteString("^")
	if len(variants) > 0 {
		quoted := make([]string, len(variants))
		for i, v := range variants {
			quoted[i] = regexp.QuoteMeta(v)
		}
		b.WriteString("(?:/(?:" + strings.Join(quoted, "|") + "))?")
	}

	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(pattern, -1) {
		b.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		switch pattern[loc[2]:loc[3]] {
		case "hash":
			fmt.Fprintf(&b, "[a-f0-9]{%d}", hashLen)
		case "crate":
			b.WriteString(regexp.QuoteMeta(crate))
		}
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteString("$")

	return regexp.Compile(b.String())
}

func normalizeVariants(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		v = strings.Trim(strings.TrimSpace(v), "/")
		if v == "" {
			return nil, errors.New("variant must not be empty")
		}
		if strings.Contains(v, "/") {
			return nil, fmt.Errorf("variant must be a single path segment: %q", v)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

func parseOrigin(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("origin required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("origin must be http or https: %s", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("origin missing host: %s", raw)
	}
	return originOf(u), nil
}

// originOf 输出 scheme://host:port，默认端口会被补全，便于直接比较。
func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/any-hub/assetcache/internal/assets"
	"github.com/any-hub/assetcache/internal/cache"
	"github.com/any-hub/assetcache/internal/preset"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	switch g.StorageBackend {
	case cache.BackendFS, cache.BackendSQLite:
	default:
		return newFieldError("Global.StorageBackend", "仅支持 fs|sqlite")
	}
	switch g.LogFormat {
	case "", "json", "text":
	default:
		return newFieldError("Global.LogFormat", "仅支持 json|text")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.CacheWriteTimeout.DurationValue() <= 0 {
		return newFieldError("Global.CacheWriteTimeout", "必须大于 0")
	}
	if g.MaxEntrySize <= 0 {
		return newFieldError("Global.MaxEntrySize", "必须大于 0")
	}

	if len(c.Apps) == 0 {
		return errors.New("至少需要配置一个 App")
	}

	seenNames := map[string]struct{}{}
	seenHosts := map[string]string{}
	for i := range c.Apps {
		app := &c.Apps[i]
		if app.Name == "" {
			return newFieldError("App[].Name", "不能为空")
		}
		if !cache.ValidName(app.Name) {
			return newFieldError(appField(app.Name, "Name"), "仅允许字母、数字、.、_、-")
		}
		if _, exists := seenNames[app.Name]; exists {
			return newFieldError(appField(app.Name, "Name"), "重复")
		}
		seenNames[app.Name] = struct{}{}

		if app.Generation == "" {
			return newFieldError(appField(app.Name, "Generation"), "不能为空")
		}
		if !cache.ValidName(app.Generation) {
			return newFieldError(appField(app.Name, "Generation"), "仅允许字母、数字、.、_、-")
		}

		origin, err := validateURL(app.Origin, "Origin")
		if err != nil {
			return fmt.Errorf("%s: %w", appField(app.Name, "Origin"), err)
		}
		if origin.Path != "" && origin.Path != "/" {
			return newFieldError(appField(app.Name, "Origin"), "不允许包含路径")
		}
		host := strings.ToLower(origin.Hostname())
		if other, exists := seenHosts[host]; exists {
			return newFieldError(appField(app.Name, "Origin"), fmt.Sprintf("Host 与 App[%s] 重复", other))
		}
		seenHosts[host] = app.Name

		if _, err := validateURL(app.Upstream, "Upstream"); err != nil {
			return fmt.Errorf("%s: %w", appField(app.Name, "Upstream"), err)
		}
		if app.Proxy != "" {
			if _, err := validateURL(app.Proxy, "Proxy"); err != nil {
				return fmt.Errorf("%s: %w", appField(app.Name, "Proxy"), err)
			}
		}

		p, ok := preset.Resolve(app.Preset)
		if !ok {
			return newFieldError(appField(app.Name, "Preset"), "仅支持 "+strings.Join(preset.Keys(), "|"))
		}
		if p.RequiresCrate() && strings.TrimSpace(app.Crate) == "" {
			return newFieldError(appField(app.Name, "Crate"), fmt.Sprintf("preset %s 需要 Crate", p.Key))
		}
		if app.HashLength < 1 || app.HashLength > 64 {
			return newFieldError(appField(app.Name, "HashLength"), "必须在 1-64")
		}
		for _, path := range app.MutablePaths {
			if !strings.HasPrefix(path, "/") {
				return newFieldError(appField(app.Name, "MutablePaths"), fmt.Sprintf("必须以 / 开头: %s", path))
			}
		}
		for _, pattern := range app.ImmutablePatterns {
			if !strings.HasPrefix(pattern, "/") {
				return newFieldError(appField(app.Name, "ImmutablePatterns"), fmt.Sprintf("必须以 / 开头: %s", pattern))
			}
			if strings.Count(pattern, "{hash}") != 1 {
				return newFieldError(appField(app.Name, "ImmutablePatterns"), fmt.Sprintf("必须且只能包含一次 {hash}: %s", pattern))
			}
			if strings.Contains(pattern, "{crate}") && strings.TrimSpace(app.Crate) == "" {
				return newFieldError(appField(app.Name, "Crate"), fmt.Sprintf("模式 %s 需要 Crate", pattern))
			}
		}
		for _, variant := range app.Variants {
			trimmed := strings.Trim(strings.TrimSpace(variant), "/")
			if trimmed == "" || strings.Contains(trimmed, "/") {
				return newFieldError(appField(app.Name, "Variants"), fmt.Sprintf("必须是单级目录名: %q", variant))
			}
		}

		if _, err := assets.Compile(app.RuleSet(p)); err != nil {
			return newFieldError(appField(app.Name, "Rules"), err.Error())
		}
	}

	return nil
}

func validateURL(raw, label string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("缺少 %s 地址", label)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("仅支持 http/https，%s: %s", label, raw)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%s 缺少 Host: %s", label, raw)
	}
	return parsed, nil
}

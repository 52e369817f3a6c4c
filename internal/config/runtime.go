package config

import (
	"fmt"

	"github.com/any-hub/assetcache/internal/assets"
	"github.com/any-hub/assetcache/internal/preset"

	// 注册内置 preset，确保 Validate 与 BuildAppRuntime 能解析 Preset 键。
	_ "github.com/any-hub/assetcache/internal/preset/static"
	_ "github.com/any-hub/assetcache/internal/preset/trunk"
)

// AppRuntime 将 App 配置与 preset 合并后的编译规则打包，方便运行时直接取用。
type AppRuntime struct {
	Config AppConfig
	Preset preset.Preset
	Rules  *assets.Rules
}

// RuleSet 以 preset 为基础，追加 App 自定义的入口路径、哈希模式与变体目录。
func (a AppConfig) RuleSet(p preset.Preset) assets.RuleSet {
	return assets.RuleSet{
		Origin:            a.Origin,
		MutablePaths:      merge(p.MutablePaths, a.MutablePaths),
		ImmutablePatterns: merge(p.ImmutablePatterns, a.ImmutablePatterns),
		Variants:          merge(p.Variants, a.Variants),
		HashLength:        a.HashLength,
		Crate:             a.Crate,
	}
}

// BuildAppRuntime 解析 preset 并编译分类规则，假定配置已通过 Validate。
func BuildAppRuntime(cfg AppConfig) (AppRuntime, error) {
	key := cfg.Preset
	if key == "" {
		key = preset.DefaultKey()
	}
	p, ok := preset.Resolve(key)
	if !ok {
		return AppRuntime{}, fmt.Errorf("app %s: unknown preset %s", cfg.Name, key)
	}
	rules, err := assets.Compile(cfg.RuleSet(p))
	if err != nil {
		return AppRuntime{}, fmt.Errorf("app %s: %w", cfg.Name, err)
	}
	return AppRuntime{Config: cfg, Preset: p, Rules: rules}, nil
}

func merge(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

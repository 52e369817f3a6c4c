package preset

import "strings"

// Preset 描述一组静态分类规则，App 可通过 Preset 键整体引用再按需追加。
type Preset struct {
	Key               string
	Description       string
	MutablePaths      []string
	ImmutablePatterns []string
	Variants          []string
}

// RequiresCrate 表示该 preset 的模式中引用了 {crate}，对应 App 必须配置 Crate。
func (p Preset) RequiresCrate() bool {
	for _, pattern := range p.ImmutablePatterns {
		if strings.Contains(pattern, "{crate}") {
			return true
		}
	}
	return false
}

// DefaultMutablePaths 是单页应用最常见的入口文件集合。
func DefaultMutablePaths() []string {
	return []string{"/", "/index.html", "/favicon.svg", "/manifest.json"}
}

// DefaultKey 返回未配置 Preset 时使用的键值。
func DefaultKey() string {
	return defaultKey
}

// Package static 提供只包含入口文件的最小 preset，哈希资源由 App 自行声明。
package static

import "github.com/any-hub/assetcache/internal/preset"

func init() {
	preset.MustRegister(preset.Preset{
		Key:          "static",
		Description:  "entry points only; declare ImmutablePatterns per app",
		MutablePaths: preset.DefaultMutablePaths(),
	})
}

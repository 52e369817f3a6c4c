// Package trunk 描述 trunk + wasm-bindgen 构建产物的分类规则。
package trunk

import "github.com/any-hub/assetcache/internal/preset"

// trunk 输出 <crate>-<16 位哈希>.js/_bg.wasm 以及 snippets/ 下的 worker 脚本，
// 多构建变体（fat/slim）部署在同名子目录中。
func init() {
	preset.MustRegister(preset.Preset{
		Key:          "trunk",
		Description:  "trunk/wasm-bindgen dist: hashed js/wasm bundles, worker snippets, hashed favicon",
		MutablePaths: preset.DefaultMutablePaths(),
		ImmutablePatterns: []string{
			"/{crate}-{hash}_bg.wasm",
			"/{crate}-{hash}.js",
			"/snippets/wasm-bindgen-futures-{hash}/src/task/worker.js",
			"/snippets/wasm-bindgen-rayon-{hash}/src/workerHelpers.no-bundler.js",
			"/snippets/wasm-bindgen-rayon-{hash}/src/workerHelpers.js",
			"/snippets/wasm-bindgen-rayon-{hash}/src/workerHelpers.worker.js",
			"/favicon-{hash}.svg",
		},
		Variants: []string{"fat", "slim"},
	})
}

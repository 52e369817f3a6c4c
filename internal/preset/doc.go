// Package preset 聚合内置的资源分类规则集（preset），并提供统一的注册入口。
//
// 新增 preset 时需要：
//  1. 在 internal/preset/<key>/ 目录下声明规则；
//  2. 在 init() 中通过 MustRegister 注册；
//  3. 在 internal/config/runtime.go 中以空导入方式引入，保证配置校验阶段即可解析。
//
// ImmutablePatterns 使用 {hash} 占位内容哈希，{crate} 占位 App.Crate。
package preset

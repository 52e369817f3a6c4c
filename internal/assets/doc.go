// Package assets compiles static asset rules and classifies intercepted
// requests. A request is Mutable when its path is one of the configured entry
// points (optionally below a deployment variant directory), Immutable when the
// path embeds a fixed-length lowercase hex content hash at a configured
// position, and Unmanaged otherwise. Cross-origin requests and any method other
// than GET are always Unmanaged. Classification is pure: it only reads the
// compiled Rules and the request URL.
package assets

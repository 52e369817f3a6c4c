// Package controller implements the asset cache controller for one
// application: the fetch strategies applied to classified requests and the
// cache generation lifecycle.
//
// A Controller is inert until Activate claims the current generation's store.
// From then on Intercept serves Immutable requests cache-first, Mutable
// requests with stale-while-revalidate and an offline fallback, and reports
// ErrNotHandled for everything else so the host can run its default fetch.
// Cache writes are detached from the request: they never delay the response
// and survive request cancellation. Wait drains them before shutdown.
package controller

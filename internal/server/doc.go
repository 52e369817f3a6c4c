// Package server hosts the Fiber HTTP service: request-id middleware, Host based
// application lookup, and the shared upstream HTTP client. Diagnostics routes
// are injected by the caller so this package stays free of controller imports.
package server

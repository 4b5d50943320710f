// Package api assembles the HTTP server: domain routes, middleware chain,
// health and metrics endpoints.
package api

// Package middleware provides the HTTP middleware chain: request IDs,
// bearer token authentication, and rate limiting (in-process or
// Redis-backed for multi-instance deployments).
package middleware

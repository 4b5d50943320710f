// Package observability provides structured logging, Prometheus metrics and
// health checks for the ShiftDeck service.
//
// Logging uses stdlib slog with a JSON handler; loggers travel through the
// request context and pick up the request ID and acting user ID set by the
// HTTP middleware. Metrics are registered on a private registry exposed via
// the health port. The readiness handler pings Postgres and, when configured,
// Redis.
package observability

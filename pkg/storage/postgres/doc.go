// Package postgres manages database connectivity: the primary/replica
// connection manager, versioned schema migrations, and the Redis client
// used for distributed rate limiting.
package postgres

// Package config provides application configuration management from
// environment variables.
//
// All settings use the SHIFTDECK_ prefix and have sensible defaults:
//
//	SHIFTDECK_HOST="0.0.0.0"
//	SHIFTDECK_PORT="8080"
//	SHIFTDECK_POSTGRES_URL="postgres://localhost/shiftdeck"   # required
//	SHIFTDECK_POSTGRES_REPLICA_URLS=""                        # comma-separated
//	SHIFTDECK_REDIS_ADDR=""                                   # optional
//	SHIFTDECK_TOKEN_TTL="24h"
//	SHIFTDECK_RATE_LIMIT_USER="300"
//	SHIFTDECK_RATE_LIMIT_ANONYMOUS="60"
//	SHIFTDECK_AUDIT_RETENTION_DAYS="365"
//	SHIFTDECK_AUDIT_CLEANUP_SCHEDULE="0 3 * * *"
//	SHIFTDECK_SSO_ENABLED="false"
//	SHIFTDECK_SSO_ISSUER_URL=""
//	SHIFTDECK_LOG_LEVEL="info"                                # debug, info, warn, error
//	SHIFTDECK_METRICS_ENABLED="true"
package config

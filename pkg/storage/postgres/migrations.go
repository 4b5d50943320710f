package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users and session tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					email VARCHAR(255),
					full_name VARCHAR(255),
					role VARCHAR(32) NOT NULL,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMP
				);

				CREATE INDEX idx_users_email ON users(email);
				CREATE INDEX idx_users_active ON users(active);

				CREATE TABLE IF NOT EXISTS session_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(16) NOT NULL,
					expires_at TIMESTAMP,
					revoked_at TIMESTAMP,
					last_used_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_session_tokens_user_id ON session_tokens(user_id);
				CREATE INDEX idx_session_tokens_expires_at ON session_tokens(expires_at);

				CREATE TABLE IF NOT EXISTS sso_identities (
					id BIGSERIAL PRIMARY KEY,
					subject VARCHAR(255) NOT NULL UNIQUE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_sso_identities_user_id ON sso_identities(user_id);
			`,
		},
		{
			Version:     2,
			Description: "Create venues and membership tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS venues (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					address TEXT,
					timezone VARCHAR(64),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_venues_active ON venues(active);

				CREATE TABLE IF NOT EXISTS user_venues (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					venue_id BIGINT NOT NULL REFERENCES venues(id) ON DELETE CASCADE,
					added_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, venue_id)
				);

				CREATE INDEX idx_user_venues_venue_id ON user_venues(venue_id);
			`,
		},
		{
			Version:     3,
			Description: "Create venue permission overrides table",
			SQL: `
				CREATE TABLE IF NOT EXISTS venue_permissions (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					venue_id BIGINT NOT NULL REFERENCES venues(id) ON DELETE CASCADE,
					permission VARCHAR(64) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE (user_id, venue_id, permission)
				);

				CREATE INDEX idx_venue_permissions_user_venue ON venue_permissions(user_id, venue_id);
			`,
		},
		{
			Version:     4,
			Description: "Create channels tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS channels (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					archived BOOLEAN NOT NULL DEFAULT FALSE,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS channel_venues (
					channel_id BIGINT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
					venue_id BIGINT NOT NULL REFERENCES venues(id) ON DELETE CASCADE,
					PRIMARY KEY (channel_id, venue_id)
				);

				CREATE INDEX idx_channel_venues_venue_id ON channel_venues(venue_id);

				CREATE TABLE IF NOT EXISTS channel_members (
					channel_id BIGINT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(16) NOT NULL,
					added_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (channel_id, user_id)
				);

				CREATE INDEX idx_channel_members_user_id ON channel_members(user_id);
			`,
		},
		{
			Version:     5,
			Description: "Create messaging tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS conversations (
					id BIGSERIAL PRIMARY KEY,
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS conversation_participants (
					conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_read_at TIMESTAMP,
					muted_until TIMESTAMP,
					PRIMARY KEY (conversation_id, user_id)
				);

				CREATE INDEX idx_conversation_participants_user_id ON conversation_participants(user_id);

				CREATE TABLE IF NOT EXISTS messages (
					id BIGSERIAL PRIMARY KEY,
					conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
					sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					body TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					edited_at TIMESTAMP
				);

				CREATE INDEX idx_messages_conversation_id ON messages(conversation_id, id);
				CREATE INDEX idx_messages_sender_id ON messages(sender_id);

				CREATE TABLE IF NOT EXISTS message_reads (
					message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					read_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (message_id, user_id)
				);
			`,
		},
		{
			Version:     6,
			Description: "Create time-off requests table",
			SQL: `
				CREATE TABLE IF NOT EXISTS timeoff_requests (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					venue_id BIGINT NOT NULL REFERENCES venues(id) ON DELETE CASCADE,
					start_date TIMESTAMP NOT NULL,
					end_date TIMESTAMP NOT NULL,
					reason TEXT,
					status VARCHAR(16) NOT NULL,
					decided_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					decided_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_timeoff_requests_user_id ON timeoff_requests(user_id);
				CREATE INDEX idx_timeoff_requests_venue_status ON timeoff_requests(venue_id, status);
			`,
		},
		{
			Version:     7,
			Description: "Create audit log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMP NOT NULL DEFAULT NOW(),
					event_type VARCHAR(64) NOT NULL,
					status VARCHAR(16) NOT NULL,
					actor_id BIGINT,
					username VARCHAR(255),
					venue_id BIGINT,
					resource_type VARCHAR(32),
					resource_id VARCHAR(255),
					request_id VARCHAR(64),
					message TEXT,
					error_message TEXT,
					changes JSONB
				);

				CREATE INDEX idx_audit_log_timestamp ON audit_log(timestamp);
				CREATE INDEX idx_audit_log_actor_id ON audit_log(actor_id);
				CREATE INDEX idx_audit_log_event_type ON audit_log(event_type);
			`,
		},
	}
}

// RunMigrations executes all pending migrations against db
func RunMigrations(ctx context.Context, db *sql.DB, log *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		log.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, description) VALUES ($1, $2)`,
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

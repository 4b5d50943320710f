package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies ShiftDeck session tokens
	TokenPrefix = "sd_"
	// TokenLength is the number of random bytes per token (256 bits)
	TokenLength = 32
)

// GenerateToken creates a new opaque token.
// Format: sd_<base64url(32 random bytes)>. Returns the plaintext token, its
// SHA-256 hash for storage, and the display prefix.
func GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encoded

	prefix := TokenPrefix
	if len(encoded) >= 8 {
		prefix = TokenPrefix + encoded[:8]
	}

	return fullToken, HashToken(fullToken), prefix, nil
}

// HashToken computes the SHA-256 hash of a token for lookup
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks that a token has the expected shape
func ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encoded := strings.TrimPrefix(token, TokenPrefix)
	if encoded == "" {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// TokenManager manages session token lifecycle
type TokenManager struct {
	db *sql.DB
}

// NewTokenManager creates a token manager backed by the given database
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{db: db}
}

// CreateToken issues a session token for a user. The plaintext token is
// returned exactly once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, ttl time.Duration) (*SessionToken, string, error) {
	token, tokenHash, tokenPrefix, err := GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	record := &SessionToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
	}
	if ttl > 0 {
		expires := time.Now().Add(ttl)
		record.ExpiresAt = &expires
	}

	query := `
		INSERT INTO session_tokens (user_id, token_hash, token_prefix, expires_at, created_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		RETURNING id, created_at
	`
	err = tm.db.QueryRowContext(ctx, query,
		record.UserID,
		record.TokenHash,
		record.TokenPrefix,
		record.ExpiresAt,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create token: %w", err)
	}

	return record, token, nil
}

// RevokeToken revokes a session token by ID
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID int64) error {
	result, err := tm.db.ExecContext(ctx,
		`UPDATE session_tokens SET revoked_at = CURRENT_TIMESTAMP WHERE id = $1 AND revoked_at IS NULL`,
		tokenID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("token not found")
	}

	return nil
}

// RevokeUserTokens revokes every live token for a user. Called when an
// account is deactivated so existing sessions die with it.
func (tm *TokenManager) RevokeUserTokens(ctx context.Context, userID int64) error {
	_, err := tm.db.ExecContext(ctx,
		`UPDATE session_tokens SET revoked_at = CURRENT_TIMESTAMP WHERE user_id = $1 AND revoked_at IS NULL`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return nil
}

// CleanupExpiredTokens deletes tokens past their expiry, returning the count
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result, err := tm.db.ExecContext(ctx,
		`DELETE FROM session_tokens WHERE expires_at IS NOT NULL AND expires_at < CURRENT_TIMESTAMP`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}
	return result.RowsAffected()
}

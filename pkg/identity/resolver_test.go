package identity

import (
	"context"
	"testing"
	"time"
)

func TestResolveActor(t *testing.T) {
	db := setupTestDB(t)
	resolver := NewResolver(db)
	ctx := context.Background()

	activeID := seedUser(t, db, "rivka", RoleManager, true)
	inactiveID := seedUser(t, db, "ghost", RoleStaff, false)

	actor, err := resolver.ResolveActor(ctx, activeID)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if actor.ID != activeID || actor.Role != RoleManager {
		t.Errorf("unexpected actor: %+v", actor)
	}

	if _, err := resolver.ResolveActor(ctx, inactiveID); err != ErrNotAuthenticated {
		t.Errorf("inactive user must not resolve, got %v", err)
	}
	if _, err := resolver.ResolveActor(ctx, 9999); err != ErrNotAuthenticated {
		t.Errorf("missing user must not resolve, got %v", err)
	}
}

func TestResolveTokenUniformFailures(t *testing.T) {
	db := setupTestDB(t)
	resolver := NewResolver(db)
	tm := NewTokenManager(db)
	ctx := context.Background()

	activeID := seedUser(t, db, "rivka", RoleStaff, true)
	inactiveID := seedUser(t, db, "ghost", RoleStaff, false)

	expired, expiredToken, err := tm.CreateToken(ctx, activeID, time.Hour)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := db.Exec(`UPDATE session_tokens SET expires_at = $1 WHERE id = $2`,
		time.Now().UTC().AddDate(0, 0, -2), expired.ID); err != nil {
		t.Fatalf("failed to backdate token: %v", err)
	}

	_, inactiveToken, err := tm.CreateToken(ctx, inactiveID, time.Hour)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"malformed", "not-a-token"},
		{"unknown", "sd_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		{"expired", expiredToken},
		{"deactivated user", inactiveToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := resolver.ResolveToken(ctx, tc.token); err != ErrNotAuthenticated {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})
	}
}

func TestResolveTokenNoExpiry(t *testing.T) {
	db := setupTestDB(t)
	resolver := NewResolver(db)
	tm := NewTokenManager(db)
	ctx := context.Background()

	userID := seedUser(t, db, "rivka", RoleStaff, true)
	_, token, err := tm.CreateToken(ctx, userID, 0)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	actor, err := resolver.ResolveToken(ctx, token)
	if err != nil {
		t.Fatalf("token without expiry must resolve: %v", err)
	}
	if actor.ID != userID {
		t.Errorf("unexpected actor: %+v", actor)
	}
}

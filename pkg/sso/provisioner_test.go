package sso

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/users"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT,
			full_name TEXT,
			role TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_login_at TIMESTAMP
		);
		CREATE TABLE sso_identities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT NOT NULL UNIQUE,
			user_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE session_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			token_prefix TEXT NOT NULL,
			expires_at TIMESTAMP,
			revoked_at TIMESTAMP,
			last_used_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func newProvisioner(t *testing.T, db *sql.DB, autoProvision bool) *Provisioner {
	t.Helper()
	return NewProvisioner(db, users.NewStore(db), audit.NopLogger{}, Config{
		AutoProvision: autoProvision,
		DefaultRole:   identity.RoleStaff,
	})
}

func seedAccount(t *testing.T, db *sql.DB, username, email string, active bool) int64 {
	t.Helper()
	activeVal := 0
	if active {
		activeVal = 1
	}
	res, err := db.Exec(
		`INSERT INTO users (username, email, role, active) VALUES ($1, $2, 'STAFF', $3)`,
		username, email, activeVal)
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func TestResolveLinkedIdentity(t *testing.T) {
	db := setupTestDB(t)
	p := newProvisioner(t, db, false)
	ctx := context.Background()

	userID := seedAccount(t, db, "rivka", "rivka@example.com", true)
	if _, err := db.Exec(`INSERT INTO sso_identities (subject, user_id) VALUES ('idp|1', $1)`, userID); err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}

	user, err := p.Resolve(ctx, &ExternalIdentity{Subject: "idp|1", Email: "rivka@example.com"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if user.ID != userID || user.Username != "rivka" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestResolveMatchesByEmailAndLinks(t *testing.T) {
	db := setupTestDB(t)
	p := newProvisioner(t, db, false)
	ctx := context.Background()

	userID := seedAccount(t, db, "rivka", "rivka@example.com", true)

	ext := &ExternalIdentity{Subject: "idp|1", Email: "rivka@example.com", Username: "rivka.idp"}
	user, err := p.Resolve(ctx, ext)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if user.ID != userID {
		t.Errorf("expected email match to user %d, got %d", userID, user.ID)
	}

	// The subject is now linked: a changed email no longer matters.
	ext.Email = "new@example.com"
	again, err := p.Resolve(ctx, ext)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if again.ID != userID {
		t.Errorf("expected linked identity to stick, got user %d", again.ID)
	}
}

func TestResolveUnknownIdentity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	ext := &ExternalIdentity{Subject: "idp|9", Email: "new@example.com", Username: "newbie", FullName: "New Person"}

	// Without auto-provisioning an unknown identity is refused.
	p := newProvisioner(t, db, false)
	if _, err := p.Resolve(ctx, ext); !errors.Is(err, ErrSignInNotAllowed) {
		t.Fatalf("expected ErrSignInNotAllowed, got %v", err)
	}

	// With it, a STAFF account is created and linked.
	p = newProvisioner(t, db, true)
	user, err := p.Resolve(ctx, ext)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if user.Username != "newbie" || user.Role != identity.RoleStaff || !user.Active {
		t.Errorf("unexpected provisioned user: %+v", user)
	}

	again, err := p.Resolve(ctx, ext)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}
	if again.ID != user.ID {
		t.Errorf("expected same account on repeat sign-in, got %d and %d", user.ID, again.ID)
	}
}

func TestResolveDeactivatedAccount(t *testing.T) {
	db := setupTestDB(t)
	p := newProvisioner(t, db, true)
	ctx := context.Background()

	userID := seedAccount(t, db, "ghost", "ghost@example.com", false)
	if _, err := db.Exec(`INSERT INTO sso_identities (subject, user_id) VALUES ('idp|2', $1)`, userID); err != nil {
		t.Fatalf("failed to seed identity: %v", err)
	}

	if _, err := p.Resolve(ctx, &ExternalIdentity{Subject: "idp|2", Email: "ghost@example.com"}); !errors.Is(err, ErrSignInNotAllowed) {
		t.Errorf("deactivated account must be refused, got %v", err)
	}
}

func TestResolveUsernameCollision(t *testing.T) {
	db := setupTestDB(t)
	p := newProvisioner(t, db, true)
	ctx := context.Background()

	seedAccount(t, db, "rivka", "rivka@example.com", true)

	// Same username, different email: must not take over the account.
	ext := &ExternalIdentity{Subject: "idp|3", Email: "other@example.com", Username: "rivka"}
	if _, err := p.Resolve(ctx, ext); !errors.Is(err, ErrSignInNotAllowed) {
		t.Errorf("username collision must be refused, got %v", err)
	}
}

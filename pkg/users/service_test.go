package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/authz"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
	"github.com/shiftdeck/shiftdeck/pkg/venues"
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
		CREATE TABLE venues (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE user_venues (
			user_id INTEGER NOT NULL,
			venue_id INTEGER NOT NULL,
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, venue_id)
		);
		CREATE TABLE venue_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			venue_id INTEGER NOT NULL,
			permission TEXT NOT NULL,
			UNIQUE (user_id, venue_id, permission)
		);
		CREATE TABLE session_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			token_hash TEXT NOT NULL UNIQUE,
			token_prefix TEXT NOT NULL,
			expires_at TIMESTAMP,
			last_used_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			revoked_at TIMESTAMP
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

type fixture struct {
	db  *sql.DB
	svc *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	authzSvc := authz.NewService(authz.NewStore(db), authz.DefaultGrants(), audit.NopLogger{}, nil)
	venueSvc := venues.NewService(venues.NewStore(db), authzSvc, audit.NopLogger{})
	svc := NewService(NewStore(db), venueSvc, identity.NewTokenManager(db), audit.NopLogger{})
	return &fixture{db: db, svc: svc}
}

func (f *fixture) user(t *testing.T, username string, role identity.Role) *identity.Actor {
	t.Helper()
	res, err := f.db.Exec(`INSERT INTO users (username, role) VALUES ($1, $2)`, username, string(role))
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	id, _ := res.LastInsertId()
	return &identity.Actor{ID: id, Username: username, Role: role}
}

func (f *fixture) venue(t *testing.T, name string) int64 {
	t.Helper()
	res, err := f.db.Exec(`INSERT INTO venues (name, active) VALUES ($1, 1)`, name)
	if err != nil {
		t.Fatalf("failed to seed venue: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func (f *fixture) assign(t *testing.T, userID, venueID int64) {
	t.Helper()
	if _, err := f.db.Exec(`INSERT INTO user_venues (user_id, venue_id) VALUES ($1, $2)`, userID, venueID); err != nil {
		t.Fatalf("failed to assign user to venue: %v", err)
	}
}

func usernames(users []*identity.User) []string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	return names
}

func TestCreateUserAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	manager := f.user(t, "moshe", identity.RoleManager)
	if err := f.svc.Create(ctx, manager, &identity.User{Username: "new", Role: identity.RoleStaff}); !errors.Is(err, authz.ErrPermissionDenied) {
		t.Fatalf("non-admin create must be denied, got %v", err)
	}

	admin := f.user(t, "admin", identity.RoleAdmin)
	user := &identity.User{Username: "new", Role: identity.RoleStaff}
	if err := f.svc.Create(ctx, admin, user); err != nil {
		t.Fatalf("admin create failed: %v", err)
	}
	if user.ID == 0 || !user.Active {
		t.Errorf("created user should be active with an ID: %+v", user)
	}

	if err := f.svc.Create(ctx, admin, &identity.User{Username: "new", Role: identity.RoleStaff}); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("duplicate username must be rejected, got %v", err)
	}
	if err := f.svc.Create(ctx, admin, &identity.User{Username: "x", Role: "SUPERUSER"}); err == nil {
		t.Error("invalid role must be rejected")
	}
}

func TestDirectoryFollowsVenueGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.user(t, "admin", identity.RoleAdmin)
	alice := f.user(t, "alice", identity.RoleStaff)
	bob := f.user(t, "bob", identity.RoleStaff)
	carol := f.user(t, "carol", identity.RoleStaff)
	loner := f.user(t, "loner", identity.RoleStaff)

	shared := f.venue(t, "Downtown")
	other := f.venue(t, "Uptown")
	f.assign(t, alice.ID, shared)
	f.assign(t, bob.ID, shared)
	f.assign(t, carol.ID, other)

	dir, err := f.svc.Directory(ctx, alice)
	if err != nil {
		t.Fatalf("Directory failed: %v", err)
	}
	names := usernames(dir)
	if len(names) != 1 || names[0] != "bob" {
		t.Errorf("alice should see exactly [bob], got %v", names)
	}

	lonerDir, err := f.svc.Directory(ctx, loner)
	if err != nil {
		t.Fatalf("Directory failed: %v", err)
	}
	if len(lonerDir) != 0 {
		t.Errorf("a user with no venues sees an empty directory, got %v", usernames(lonerDir))
	}

	adminDir, err := f.svc.Directory(ctx, admin)
	if err != nil {
		t.Fatalf("Directory failed: %v", err)
	}
	if len(adminDir) != 5 {
		t.Errorf("admin sees every active user, got %v", usernames(adminDir))
	}
}

func TestDirectoryExcludesDeactivatedUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.user(t, "admin", identity.RoleAdmin)
	alice := f.user(t, "alice", identity.RoleStaff)
	bob := f.user(t, "bob", identity.RoleStaff)
	venueID := f.venue(t, "Downtown")
	f.assign(t, alice.ID, venueID)
	f.assign(t, bob.ID, venueID)

	if err := f.svc.Deactivate(ctx, admin, bob.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	dir, err := f.svc.Directory(ctx, alice)
	if err != nil {
		t.Fatalf("Directory failed: %v", err)
	}
	if len(dir) != 0 {
		t.Errorf("deactivated users must vanish from the directory, got %v", usernames(dir))
	}
}

func TestGetUserConflatesMissingAndInvisible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.user(t, "alice", identity.RoleStaff)
	carol := f.user(t, "carol", identity.RoleStaff)
	f.assign(t, alice.ID, f.venue(t, "Downtown"))
	f.assign(t, carol.ID, f.venue(t, "Uptown"))

	_, errInvisible := f.svc.Get(ctx, alice, carol.ID)
	_, errMissing := f.svc.Get(ctx, alice, 99999)
	if !errors.Is(errInvisible, ErrUserNotFound) || !errors.Is(errMissing, ErrUserNotFound) {
		t.Errorf("invisible and nonexistent users must be indistinguishable: %v vs %v",
			errInvisible, errMissing)
	}

	// Self is always visible.
	if _, err := f.svc.Get(ctx, alice, alice.ID); err != nil {
		t.Errorf("self lookup failed: %v", err)
	}
}

func TestDeactivateGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.user(t, "admin", identity.RoleAdmin)
	staff := f.user(t, "rivka", identity.RoleStaff)

	if err := f.svc.Deactivate(ctx, staff, admin.ID); !errors.Is(err, authz.ErrPermissionDenied) {
		t.Errorf("non-admin deactivate must be denied, got %v", err)
	}
	if err := f.svc.Deactivate(ctx, admin, admin.ID); err == nil {
		t.Error("self-deactivation must be rejected")
	}
	if err := f.svc.Deactivate(ctx, admin, staff.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	user, err := f.svc.store.Get(ctx, staff.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if user.Active {
		t.Error("user should be inactive after deactivation")
	}
}

func TestChangeRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.user(t, "admin", identity.RoleAdmin)
	staff := f.user(t, "rivka", identity.RoleStaff)

	if err := f.svc.ChangeRole(ctx, staff, staff.ID, identity.RoleAdmin); !errors.Is(err, authz.ErrPermissionDenied) {
		t.Errorf("non-admin role change must be denied, got %v", err)
	}
	if err := f.svc.ChangeRole(ctx, admin, admin.ID, identity.RoleStaff); err == nil {
		t.Error("changing your own role must be rejected")
	}
	if err := f.svc.ChangeRole(ctx, admin, staff.ID, "SUPERUSER"); err == nil {
		t.Error("invalid role must be rejected")
	}

	if err := f.svc.ChangeRole(ctx, admin, staff.ID, identity.RoleManager); err != nil {
		t.Fatalf("role change failed: %v", err)
	}
	user, err := f.svc.store.Get(ctx, staff.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if user.Role != identity.RoleManager {
		t.Errorf("expected MANAGER, got %s", user.Role)
	}
}

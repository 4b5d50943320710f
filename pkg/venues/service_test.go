package venues

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shiftdeck/shiftdeck/pkg/audit"
	"github.com/shiftdeck/shiftdeck/pkg/authz"
	"github.com/shiftdeck/shiftdeck/pkg/identity"
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
			full_name TEXT,
			role TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1
		);
		CREATE TABLE venues (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			address TEXT,
			timezone TEXT,
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
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func newTestService(db *sql.DB) *Service {
	authzSvc := authz.NewService(authz.NewStore(db), authz.DefaultGrants(), audit.NopLogger{}, nil)
	return NewService(NewStore(db), authzSvc, audit.NopLogger{})
}

func seedUser(t *testing.T, db *sql.DB, username string, role identity.Role, active bool) int64 {
	t.Helper()
	activeVal := 0
	if active {
		activeVal = 1
	}
	res, err := db.Exec(`INSERT INTO users (username, role, active) VALUES ($1, $2, $3)`,
		username, string(role), activeVal)
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func seedVenue(t *testing.T, db *sql.DB, name string, active bool) int64 {
	t.Helper()
	activeVal := 0
	if active {
		activeVal = 1
	}
	res, err := db.Exec(`INSERT INTO venues (name, active) VALUES ($1, $2)`, name, activeVal)
	if err != nil {
		t.Fatalf("failed to seed venue: %v", err)
	}
	id, _ := res.LastInsertId()
	return id
}

func assign(t *testing.T, db *sql.DB, userID, venueID int64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO user_venues (user_id, venue_id) VALUES ($1, $2)`, userID, venueID)
	if err != nil {
		t.Fatalf("failed to assign user to venue: %v", err)
	}
}

func containsID(ids []int64, want int64) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func TestSharedVenueUsersSymmetry(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	a := seedUser(t, db, "aviva", identity.RoleStaff, true)
	b := seedUser(t, db, "boaz", identity.RoleStaff, true)
	venue := seedVenue(t, db, "Downtown", true)
	assign(t, db, a, venue)
	assign(t, db, b, venue)

	setA, err := svc.SharedVenueUsers(ctx, a)
	if err != nil {
		t.Fatalf("SharedVenueUsers(a) failed: %v", err)
	}
	setB, err := svc.SharedVenueUsers(ctx, b)
	if err != nil {
		t.Fatalf("SharedVenueUsers(b) failed: %v", err)
	}

	if containsID(setA, b) != containsID(setB, a) {
		t.Errorf("visibility must be symmetric: a sees b=%v, b sees a=%v",
			containsID(setA, b), containsID(setB, a))
	}
	if !containsID(setA, b) {
		t.Error("users at the same venue must see each other")
	}
	if !containsID(setA, a) {
		t.Error("a user with an active venue appears in their own set")
	}
}

func TestSharedVenueUsersExcludesInactiveVenue(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	a := seedUser(t, db, "aviva", identity.RoleStaff, true)
	b := seedUser(t, db, "boaz", identity.RoleStaff, true)
	closed := seedVenue(t, db, "Closed", false)
	assign(t, db, a, closed)
	assign(t, db, b, closed)

	set, err := svc.SharedVenueUsers(ctx, a)
	if err != nil {
		t.Fatalf("SharedVenueUsers failed: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("a deactivated venue must contribute nothing, got %v", set)
	}
}

func TestSharedVenueUsersExcludesInactiveUsers(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	a := seedUser(t, db, "aviva", identity.RoleStaff, true)
	gone := seedUser(t, db, "departed", identity.RoleStaff, false)
	venue := seedVenue(t, db, "Downtown", true)
	assign(t, db, a, venue)
	assign(t, db, gone, venue)

	set, err := svc.SharedVenueUsers(ctx, a)
	if err != nil {
		t.Fatalf("SharedVenueUsers failed: %v", err)
	}
	if containsID(set, gone) {
		t.Error("deactivated users must not appear in the shared set")
	}
}

func TestSharedVenueUsersZeroVenuesIsEmpty(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db)

	loner := seedUser(t, db, "loner", identity.RoleStaff, true)

	set, err := svc.SharedVenueUsers(context.Background(), loner)
	if err != nil {
		t.Fatalf("SharedVenueUsers failed: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("a user with no active venues sees nobody, not even themselves: %v", set)
	}
}

func TestSharesVenue(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	a := seedUser(t, db, "aviva", identity.RoleStaff, true)
	b := seedUser(t, db, "boaz", identity.RoleStaff, true)
	c := seedUser(t, db, "carmel", identity.RoleStaff, true)
	venue := seedVenue(t, db, "Downtown", true)
	other := seedVenue(t, db, "Uptown", true)
	assign(t, db, a, venue)
	assign(t, db, b, venue)
	assign(t, db, c, other)

	shared, err := svc.SharesVenue(ctx, a, b)
	if err != nil || !shared {
		t.Errorf("a and b share a venue, got shared=%v err=%v", shared, err)
	}
	shared, err = svc.SharesVenue(ctx, a, c)
	if err != nil || shared {
		t.Errorf("a and c share nothing, got shared=%v err=%v", shared, err)
	}
}

func TestScopeFor(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	staffID := seedUser(t, db, "rivka", identity.RoleStaff, true)
	venueA := seedVenue(t, db, "Downtown", true)
	venueB := seedVenue(t, db, "Uptown", true)
	closed := seedVenue(t, db, "Closed", false)
	assign(t, db, staffID, venueA)
	assign(t, db, staffID, closed)

	staff := &identity.Actor{ID: staffID, Role: identity.RoleStaff}
	scope, err := svc.ScopeFor(ctx, staff)
	if err != nil {
		t.Fatalf("ScopeFor failed: %v", err)
	}
	if scope.AllowsAll() {
		t.Error("staff scope must be bounded")
	}
	if !scope.Contains(venueA) {
		t.Error("scope should contain assigned active venue")
	}
	if scope.Contains(venueB) {
		t.Error("scope should not contain unassigned venue")
	}
	if scope.Contains(closed) {
		t.Error("scope should not contain deactivated venue")
	}

	admin := &identity.Actor{ID: 999, Role: identity.RoleAdmin}
	adminScope, err := svc.ScopeFor(ctx, admin)
	if err != nil {
		t.Fatalf("ScopeFor failed: %v", err)
	}
	if !adminScope.AllowsAll() || !adminScope.Contains(closed) {
		t.Error("admin scope must be unbounded")
	}

	loner := &identity.Actor{ID: seedUser(t, db, "loner", identity.RoleStaff, true), Role: identity.RoleStaff}
	emptyScope, err := svc.ScopeFor(ctx, loner)
	if err != nil {
		t.Fatalf("ScopeFor failed: %v", err)
	}
	if !emptyScope.IsEmpty() {
		t.Error("a user with no venues gets the empty scope")
	}
}

func TestGetVenueConflatesMissingAndForbidden(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	staffID := seedUser(t, db, "rivka", identity.RoleStaff, true)
	venueID := seedVenue(t, db, "Downtown", true)

	staff := &identity.Actor{ID: staffID, Role: identity.RoleStaff}

	_, errExisting := svc.Get(ctx, staff, venueID)
	_, errMissing := svc.Get(ctx, staff, 99999)
	if !errors.Is(errExisting, ErrVenueNotFound) || !errors.Is(errMissing, ErrVenueNotFound) {
		t.Errorf("outside-scope and nonexistent venues must be indistinguishable: %v vs %v",
			errExisting, errMissing)
	}

	assign(t, db, staffID, venueID)
	venue, err := svc.Get(ctx, staff, venueID)
	if err != nil {
		t.Fatalf("member should see the venue: %v", err)
	}
	if venue.Name != "Downtown" {
		t.Errorf("unexpected venue: %+v", venue)
	}
}

func TestCreateVenueRequiresAdmin(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	managerID := seedUser(t, db, "moshe", identity.RoleManager, true)
	manager := &identity.Actor{ID: managerID, Role: identity.RoleManager}

	err := svc.Create(ctx, manager, &Venue{Name: "New Spot"})
	if !errors.Is(err, authz.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	admin := &identity.Actor{ID: seedUser(t, db, "admin", identity.RoleAdmin, true), Role: identity.RoleAdmin}
	venue := &Venue{Name: "New Spot"}
	if err := svc.Create(ctx, admin, venue); err != nil {
		t.Fatalf("admin create failed: %v", err)
	}
	if venue.ID == 0 || !venue.Active {
		t.Errorf("created venue should be active with an ID: %+v", venue)
	}
}

func TestMemberManagementRequiresVenueManage(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	managerID := seedUser(t, db, "moshe", identity.RoleManager, true)
	staffID := seedUser(t, db, "rivka", identity.RoleStaff, true)
	venueA := seedVenue(t, db, "Downtown", true)
	venueB := seedVenue(t, db, "Uptown", true)

	manager := &identity.Actor{ID: managerID, Username: "moshe", Role: identity.RoleManager}

	err := svc.AddMember(ctx, manager, staffID, venueA)
	if !errors.Is(err, authz.ErrPermissionDenied) {
		t.Fatalf("manager without override must be denied, got %v", err)
	}

	// venues:manage granted as an override at venue A only.
	if _, err := db.Exec(`INSERT INTO venue_permissions (user_id, venue_id, permission) VALUES ($1, $2, 'venues:manage')`,
		managerID, venueA); err != nil {
		t.Fatalf("failed to seed override: %v", err)
	}

	if err := svc.AddMember(ctx, manager, staffID, venueA); err != nil {
		t.Fatalf("manager with override should add members: %v", err)
	}
	err = svc.AddMember(ctx, manager, staffID, venueB)
	if !errors.Is(err, authz.ErrPermissionDenied) {
		t.Errorf("override must not leak to other venues, got %v", err)
	}

	member, err := svc.store.IsMember(ctx, staffID, venueA)
	if err != nil || !member {
		t.Errorf("staff should now be a member of venue A: member=%v err=%v", member, err)
	}

	if err := svc.RemoveMember(ctx, manager, staffID, venueA); err != nil {
		t.Fatalf("manager with override should remove members: %v", err)
	}
	err = svc.RemoveMember(ctx, manager, staffID, venueA)
	if !errors.Is(err, ErrNotMember) {
		t.Errorf("removing a missing assignment returns ErrNotMember, got %v", err)
	}
}

func TestDeactivateVenueCascadesIntoVisibility(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(db)
	ctx := context.Background()

	adminID := seedUser(t, db, "admin", identity.RoleAdmin, true)
	a := seedUser(t, db, "aviva", identity.RoleStaff, true)
	b := seedUser(t, db, "boaz", identity.RoleStaff, true)
	venueID := seedVenue(t, db, "Downtown", true)
	assign(t, db, a, venueID)
	assign(t, db, b, venueID)

	admin := &identity.Actor{ID: adminID, Role: identity.RoleAdmin}
	staff := &identity.Actor{ID: a, Role: identity.RoleStaff}

	if err := svc.Deactivate(ctx, staff, venueID); !errors.Is(err, authz.ErrPermissionDenied) {
		t.Fatalf("non-admin deactivate must be denied, got %v", err)
	}
	if err := svc.Deactivate(ctx, admin, venueID); err != nil {
		t.Fatalf("admin deactivate failed: %v", err)
	}

	set, err := svc.SharedVenueUsers(ctx, a)
	if err != nil {
		t.Fatalf("SharedVenueUsers failed: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("deactivation must empty the shared set, got %v", set)
	}

	scope, err := svc.ScopeFor(ctx, staff)
	if err != nil {
		t.Fatalf("ScopeFor failed: %v", err)
	}
	if scope.Contains(venueID) {
		t.Error("deactivated venue must leave the scope")
	}
}

package messaging

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

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
			full_name TEXT,
			role TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1
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
		CREATE TABLE conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_by INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE conversation_participants (
			conversation_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_read_at TIMESTAMP,
			muted_until TIMESTAMP,
			PRIMARY KEY (conversation_id, user_id)
		);
		CREATE TABLE messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			sender_id INTEGER NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			edited_at TIMESTAMP
		);
		CREATE TABLE message_reads (
			message_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			read_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (message_id, user_id)
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
	svc := NewService(NewStore(db), venueSvc, audit.NopLogger{})
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

func TestStartConversationRequiresSharedVenue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.user(t, "alice", identity.RoleStaff)
	bob := f.user(t, "bob", identity.RoleStaff)
	carol := f.user(t, "carol", identity.RoleStaff)

	shared := f.venue(t, "Downtown")
	other := f.venue(t, "Uptown")
	f.assign(t, alice.ID, shared)
	f.assign(t, bob.ID, shared)
	f.assign(t, carol.ID, other)

	conv, err := f.svc.StartConversation(ctx, alice, []int64{bob.ID})
	if err != nil {
		t.Fatalf("conversation between venue-mates failed: %v", err)
	}
	if len(conv.Participants) != 2 {
		t.Errorf("expected 2 participants, got %v", conv.Participants)
	}

	// Non-shared users and nonexistent users fail identically.
	_, errStranger := f.svc.StartConversation(ctx, alice, []int64{carol.ID})
	_, errGhost := f.svc.StartConversation(ctx, alice, []int64{99999})
	if !errors.Is(errStranger, ErrNotInYourVenues) || !errors.Is(errGhost, ErrNotInYourVenues) {
		t.Errorf("unreachable and nonexistent users must fail identically: %v vs %v",
			errStranger, errGhost)
	}
}

func TestStartConversationAdminBypassesVenueGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.user(t, "admin", identity.RoleAdmin)
	remote := f.user(t, "remote", identity.RoleStaff)
	f.assign(t, remote.ID, f.venue(t, "Uptown"))

	if _, err := f.svc.StartConversation(ctx, admin, []int64{remote.ID}); err != nil {
		t.Errorf("admin should reach any user, got %v", err)
	}
}

func TestStartConversationNeedsAnotherParticipant(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", identity.RoleStaff)

	if _, err := f.svc.StartConversation(context.Background(), alice, []int64{alice.ID}); !errors.Is(err, ErrNoParticipants) {
		t.Errorf("self-only conversation must be rejected, got %v", err)
	}
}

func TestConversationAccessConflation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.user(t, "alice", identity.RoleStaff)
	bob := f.user(t, "bob", identity.RoleStaff)
	eve := f.user(t, "eve", identity.RoleStaff)
	venueID := f.venue(t, "Downtown")
	f.assign(t, alice.ID, venueID)
	f.assign(t, bob.ID, venueID)
	f.assign(t, eve.ID, venueID)

	conv, err := f.svc.StartConversation(ctx, alice, []int64{bob.ID})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	_, errExisting := f.svc.GetConversation(ctx, eve, conv.ID)
	_, errMissing := f.svc.GetConversation(ctx, eve, 99999)
	if !errors.Is(errExisting, ErrConversationNotFound) || !errors.Is(errMissing, ErrConversationNotFound) {
		t.Errorf("non-participant and nonexistent conversations must be indistinguishable: %v vs %v",
			errExisting, errMissing)
	}

	if _, err := f.svc.SendMessage(ctx, eve, conv.ID, "hi"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("non-participant send must fail as not found, got %v", err)
	}
}

func TestConversationSurvivesVenueDivergence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.user(t, "alice", identity.RoleStaff)
	bob := f.user(t, "bob", identity.RoleStaff)
	venueID := f.venue(t, "Downtown")
	f.assign(t, alice.ID, venueID)
	f.assign(t, bob.ID, venueID)

	conv, err := f.svc.StartConversation(ctx, alice, []int64{bob.ID})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Deactivating the shared venue blocks new conversations but not
	// existing ones.
	if _, err := f.db.Exec(`UPDATE venues SET active = 0 WHERE id = $1`, venueID); err != nil {
		t.Fatalf("failed to deactivate venue: %v", err)
	}

	if _, err := f.svc.SendMessage(ctx, alice, conv.ID, "still here"); err != nil {
		t.Errorf("existing conversation must keep working, got %v", err)
	}
	if _, err := f.svc.StartConversation(ctx, alice, []int64{bob.ID}); !errors.Is(err, ErrNotInYourVenues) {
		t.Errorf("new conversation after divergence must fail, got %v", err)
	}
}

func TestEditMessageWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.user(t, "alice", identity.RoleStaff)
	bob := f.user(t, "bob", identity.RoleStaff)
	venueID := f.venue(t, "Downtown")
	f.assign(t, alice.ID, venueID)
	f.assign(t, bob.ID, venueID)

	conv, err := f.svc.StartConversation(ctx, alice, []int64{bob.ID})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	msg, err := f.svc.SendMessage(ctx, alice, conv.ID, "first draft")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	edited, err := f.svc.EditMessage(ctx, alice, msg.ID, "second draft")
	if err != nil {
		t.Fatalf("edit inside window failed: %v", err)
	}
	if edited.Body != "second draft" || edited.EditedAt == nil {
		t.Errorf("edit should update body and stamp edited_at: %+v", edited)
	}

	// Only the author may edit; everyone else sees not-found.
	if _, err := f.svc.EditMessage(ctx, bob, msg.ID, "hijack"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("non-author edit must fail as not found, got %v", err)
	}

	f.svc.now = func() time.Time { return msg.CreatedAt.Add(EditWindow + time.Minute) }
	if _, err := f.svc.EditMessage(ctx, alice, msg.ID, "too late"); !errors.Is(err, ErrEditWindowExpired) {
		t.Errorf("edit after the window must fail, got %v", err)
	}
}

func TestDeleteMessageAuthorOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.user(t, "alice", identity.RoleStaff)
	bob := f.user(t, "bob", identity.RoleStaff)
	venueID := f.venue(t, "Downtown")
	f.assign(t, alice.ID, venueID)
	f.assign(t, bob.ID, venueID)

	conv, err := f.svc.StartConversation(ctx, alice, []int64{bob.ID})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	msg, err := f.svc.SendMessage(ctx, alice, conv.ID, "to be removed")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if err := f.svc.DeleteMessage(ctx, bob, msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("non-author delete must fail as not found, got %v", err)
	}

	// The author may delete at any age; move well past the edit window first.
	f.svc.now = func() time.Time { return msg.CreatedAt.Add(48 * time.Hour) }
	if err := f.svc.DeleteMessage(ctx, alice, msg.ID); err != nil {
		t.Fatalf("author delete failed: %v", err)
	}
	if _, err := f.svc.store.GetMessage(ctx, msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("deleted message must be gone, got %v", err)
	}
}

func TestMarkReadIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.user(t, "alice", identity.RoleStaff)
	bob := f.user(t, "bob", identity.RoleStaff)
	eve := f.user(t, "eve", identity.RoleStaff)
	venueID := f.venue(t, "Downtown")
	f.assign(t, alice.ID, venueID)
	f.assign(t, bob.ID, venueID)
	f.assign(t, eve.ID, venueID)

	conv, err := f.svc.StartConversation(ctx, alice, []int64{bob.ID})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	msg, err := f.svc.SendMessage(ctx, alice, conv.ID, "read me")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if err := f.svc.MarkRead(ctx, bob, msg.ID); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	// Re-marking is a no-op, not an error.
	if err := f.svc.MarkRead(ctx, bob, msg.ID); err != nil {
		t.Fatalf("repeated mark read failed: %v", err)
	}

	read, err := f.svc.store.HasRead(ctx, msg.ID, bob.ID)
	if err != nil || !read {
		t.Errorf("expected message read, got read=%v err=%v", read, err)
	}

	if err := f.svc.MarkRead(ctx, eve, msg.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("non-participant mark read must fail as not found, got %v", err)
	}
}

func TestSearchScopedToOwnConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.user(t, "alice", identity.RoleStaff)
	bob := f.user(t, "bob", identity.RoleStaff)
	eve := f.user(t, "eve", identity.RoleStaff)
	venueID := f.venue(t, "Downtown")
	f.assign(t, alice.ID, venueID)
	f.assign(t, bob.ID, venueID)
	f.assign(t, eve.ID, venueID)

	conv, err := f.svc.StartConversation(ctx, alice, []int64{bob.ID})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, alice, conv.ID, "the secret roster"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	results, err := f.svc.Search(ctx, bob, "secret", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("participant should find the message, got %d results", len(results))
	}

	results, err = f.svc.Search(ctx, eve, "secret", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("non-participant must find nothing, got %d results", len(results))
	}
}

func TestSearchScopedToSharedVenueSenders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice := f.user(t, "alice", identity.RoleStaff)
	bob := f.user(t, "bob", identity.RoleStaff)
	shared := f.venue(t, "Downtown")
	other := f.venue(t, "Uptown")
	f.assign(t, alice.ID, shared)
	f.assign(t, alice.ID, other)
	f.assign(t, bob.ID, shared)

	conv, err := f.svc.StartConversation(ctx, alice, []int64{bob.ID})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, bob, conv.ID, "quarterly roster"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := f.svc.SendMessage(ctx, alice, conv.ID, "roster received"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	results, err := f.svc.Search(ctx, alice, "roster", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected both messages while venues are shared, got %d", len(results))
	}

	// Deactivating the shared venue keeps the conversation readable but
	// drops the diverged sender from search results.
	if _, err := f.db.Exec(`UPDATE venues SET active = 0 WHERE id = $1`, shared); err != nil {
		t.Fatalf("failed to deactivate venue: %v", err)
	}

	if _, err := f.svc.ListMessages(ctx, alice, conv.ID, 0, 10); err != nil {
		t.Fatalf("conversation must stay readable: %v", err)
	}

	results, err = f.svc.Search(ctx, alice, "roster", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 || results[0].SenderID != alice.ID {
		t.Errorf("only shared-venue senders may surface, got %+v", results)
	}

	// With no active venues at all the candidate sender set is empty.
	if _, err := f.db.Exec(`UPDATE venues SET active = 0 WHERE id = $1`, other); err != nil {
		t.Fatalf("failed to deactivate venue: %v", err)
	}
	results, err = f.svc.Search(ctx, alice, "roster", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("searcher with no active venues must find nothing, got %d", len(results))
	}
}

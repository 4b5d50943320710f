package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TIMESTAMP NOT NULL,
			event_type TEXT NOT NULL,
			status TEXT NOT NULL,
			actor_id INTEGER,
			username TEXT,
			venue_id INTEGER,
			resource_type TEXT,
			resource_id TEXT,
			request_id TEXT,
			message TEXT,
			error_message TEXT,
			changes TEXT
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

func seedEvent(t *testing.T, db *sql.DB, ts time.Time, eventType EventType, actorID int64, venueID interface{}) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO audit_log (timestamp, event_type, status, actor_id, venue_id, resource_type, resource_id)
		VALUES ($1, $2, 'success', $3, $4, 'venue', 'venue:1')
	`, ts, string(eventType), actorID, venueID)
	if err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}
}

func TestSearchFilters(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedEvent(t, db, base, EventTypeVenueCreate, 1, int64(10))
	seedEvent(t, db, base.Add(time.Hour), EventTypeVenueMemberAdd, 1, int64(10))
	seedEvent(t, db, base.Add(2*time.Hour), EventTypeChannelCreate, 2, nil)

	all, err := store.Search(ctx, SearchFilter{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	// Newest first.
	if all[0].EventType != EventTypeChannelCreate {
		t.Errorf("expected newest first, got %s", all[0].EventType)
	}

	actorID := int64(1)
	byActor, err := store.Search(ctx, SearchFilter{ActorID: &actorID})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(byActor) != 2 {
		t.Errorf("expected 2 events for actor 1, got %d", len(byActor))
	}

	byType, err := store.Search(ctx, SearchFilter{EventTypes: []EventType{EventTypeVenueCreate, EventTypeChannelCreate}})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("expected 2 events by type, got %d", len(byType))
	}

	cutoff := base.Add(30 * time.Minute)
	since, err := store.Search(ctx, SearchFilter{StartTime: &cutoff})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("expected 2 events after cutoff, got %d", len(since))
	}

	limited, err := store.Search(ctx, SearchFilter{Limit: 1})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestDeleteOlderThan(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	seedEvent(t, db, base.AddDate(0, 0, -120), EventTypeAuthLogin, 1, nil)
	seedEvent(t, db, base.AddDate(0, 0, -10), EventTypeAuthLogin, 1, nil)
	seedEvent(t, db, base, EventTypeAuthLogin, 1, nil)

	deleted, err := store.DeleteOlderThan(ctx, base.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	remaining, err := store.Search(ctx, SearchFilter{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(remaining))
	}
}

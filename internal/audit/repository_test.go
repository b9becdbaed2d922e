package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/devicelink/internal/infrastructure/database"
	_ "github.com/nerrad567/devicelink/migrations"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestCreate_GeneratesIDAndTimestamp(t *testing.T) {
	repo := openTestRepo(t)

	entry := &Entry{Action: "registered", EntityID: "alice", Source: "127.0.0.1:40000"}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(entry.ID, "aud-") {
		t.Errorf("ID = %q, want aud- prefix", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if entry.EntityType != EntityDevice {
		t.Errorf("EntityType = %q, want %q", entry.EntityType, EntityDevice)
	}
}

func TestList_NewestFirstWithDetails(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, action := range []string{"registered", "logged_on", "logged_off"} {
		err := repo.Create(ctx, &Entry{
			Action:    action,
			EntityID:  "alice",
			Source:    "127.0.0.1:40000",
			Details:   map[string]any{"code": "00"},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", action, err)
		}
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 3 || len(result.Entries) != 3 {
		t.Fatalf("List() total=%d entries=%d, want 3", result.Total, len(result.Entries))
	}
	if result.Entries[0].Action != "logged_off" || result.Entries[2].Action != "registered" {
		t.Errorf("entries not newest first: %v, %v", result.Entries[0].Action, result.Entries[2].Action)
	}
	if result.Entries[0].Details["code"] != "00" {
		t.Errorf("Details = %v, want code 00", result.Entries[0].Details)
	}
	if !result.Entries[2].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", result.Entries[2].CreatedAt, base)
	}
	if result.Limit != defaultLimit {
		t.Errorf("Limit = %d, want default %d", result.Limit, defaultLimit)
	}
}

func TestList_Filters(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for _, e := range []Entry{
		{Action: "registered", EntityID: "alice", Source: "a"},
		{Action: "registered", EntityID: "bob", Source: "b"},
		{Action: "deregistered", EntityID: "alice", Source: "a"},
	} {
		e := e
		if err := repo.Create(ctx, &e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{name: "by action", filter: Filter{Action: "registered"}, want: 2},
		{name: "by device", filter: Filter{EntityID: "alice"}, want: 2},
		{name: "combined", filter: Filter{Action: "registered", EntityID: "bob"}, want: 1},
		{name: "no match", filter: Filter{EntityID: "carol"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.want || len(result.Entries) != tt.want {
				t.Errorf("List() total=%d entries=%d, want %d", result.Total, len(result.Entries), tt.want)
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for range 5 {
		if err := repo.Create(ctx, &Entry{Action: "logged_on", EntityID: "alice", Source: "a"}); err != nil {
			t.Fatal(err)
		}
	}

	result, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 5 || len(result.Entries) != 1 {
		t.Errorf("page total=%d entries=%d, want 5 and 1", result.Total, len(result.Entries))
	}

	result, err = repo.List(ctx, Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatal(err)
	}
	if result.Limit != maxLimit || result.Offset != 0 {
		t.Errorf("clamped limit=%d offset=%d", result.Limit, result.Offset)
	}
}

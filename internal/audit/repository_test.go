package audit

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/robolink-gateway/internal/infrastructure/database"
	"github.com/nerrad567/robolink-gateway/migrations"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateGeneratesIDAndTime(t *testing.T) {
	repo := openTestRepo(t)
	entry := &Entry{RobotID: "R1", Source: SourceAPI, Status: StatusSent, Bytes: 11}

	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(entry.ID) != len("cmd-")+8 {
		t.Errorf("ID = %q, want cmd- plus 8 chars", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Total != 1 || got.Entries[0].ID != entry.ID || got.Entries[0].Subject != "" {
		t.Errorf("List() = %+v", got)
	}
}

func TestSQLiteRepository_ListFilters(t *testing.T) {
	repo := openTestRepo(t)
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	seed := []Entry{
		{RobotID: "R1", Source: SourceAPI, Status: StatusSent, Bytes: 4, Subject: "ops"},
		{RobotID: "R1", Source: SourceMQTT, Status: StatusFailed, Error: "write failed"},
		{RobotID: "R2", Source: SourceManage, Status: StatusNotConnected, Error: "R2 not connected"},
		{RobotID: "R2", Source: SourceAPI, Status: StatusSent, Bytes: 2},
	}
	for i := range seed {
		seed[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := repo.Create(context.Background(), &seed[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string // robot_id/source of the newest match
	}{
		{"all", Filter{}, 4, "R2/api"},
		{"by robot", Filter{RobotID: "R1"}, 2, "R1/mqtt"},
		{"by source", Filter{Source: SourceAPI}, 2, "R2/api"},
		{"by status", Filter{Status: StatusNotConnected}, 1, "R2/manage"},
		{"combined", Filter{RobotID: "R1", Status: StatusSent}, 1, "R1/api"},
		{"no match", Filter{RobotID: "R9"}, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if got.Total != tt.wantTotal || len(got.Entries) != tt.wantTotal {
				t.Fatalf("Total = %d, entries = %d, want %d", got.Total, len(got.Entries), tt.wantTotal)
			}
			if tt.wantTotal == 0 {
				if got.Entries == nil {
					t.Error("Entries should be an empty slice, not nil")
				}
				return
			}
			if first := got.Entries[0].RobotID + "/" + got.Entries[0].Source; first != tt.wantFirst {
				t.Errorf("first = %s, want %s", first, tt.wantFirst)
			}
		})
	}
}

func TestSQLiteRepository_ListPagination(t *testing.T) {
	repo := openTestRepo(t)
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	for i := range 5 {
		e := &Entry{RobotID: "R1", Source: SourceAPI, Status: StatusSent, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := repo.Create(context.Background(), e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repo.List(context.Background(), Filter{Limit: 2, Offset: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Total != 5 || len(got.Entries) != 2 || got.Limit != 2 || got.Offset != 3 {
		t.Errorf("page = total %d, len %d, limit %d, offset %d", got.Total, len(got.Entries), got.Limit, got.Offset)
	}
	if !got.Entries[0].CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("first entry at %v, want %v", got.Entries[0].CreatedAt, base.Add(time.Second))
	}

	clamped, err := repo.List(context.Background(), Filter{Limit: 1000, Offset: -4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if clamped.Limit != maxListLimit || clamped.Offset != 0 {
		t.Errorf("clamped limit=%d offset=%d", clamped.Limit, clamped.Offset)
	}
}

func TestSQLiteRepository_ListSubSecondOrder(t *testing.T) {
	repo := openTestRepo(t)
	first := time.Date(2026, 10, 18, 10, 0, 0, 500_000_000, time.UTC)
	older := &Entry{ID: "cmd-older", RobotID: "R1", Source: SourceAPI, Status: StatusSent, CreatedAt: first}
	newer := &Entry{ID: "cmd-a-newer", RobotID: "R1", Source: SourceAPI, Status: StatusSent, CreatedAt: first.Add(time.Millisecond)}
	for _, e := range []*Entry{older, newer} {
		if err := repo.Create(context.Background(), e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got.Entries) != 2 || got.Entries[0].ID != newer.ID || got.Entries[1].ID != older.ID {
		t.Fatalf("List() order = %+v, want %s then %s", got.Entries, newer.ID, older.ID)
	}
	if !got.Entries[1].CreatedAt.Equal(first) {
		t.Errorf("CreatedAt = %v, want %v", got.Entries[1].CreatedAt, first)
	}
}

package violations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/dbctx"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/platform/logger"
	"github.com/oaknational/oak-ai-lesson-assistant/internal/safety"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&safety.Violation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func record(userID, recordID string, at time.Time) *safety.Violation {
	return &safety.Violation{
		ID:              uuid.New(),
		UserID:          userID,
		UserAction:      safety.ActionChatMessage,
		DetectionSource: safety.SourceModeration,
		RecordType:      safety.RecordChatSession,
		RecordID:        recordID,
		CreatedAt:       at,
	}
}

func TestCountSinceRespectsWindow(t *testing.T) {
	repo := NewViolationRepo(testDB(t), logger.NewNop())
	dbc := dbctx.New(context.Background())

	now := time.Now()
	if err := repo.Create(dbc, record("user-1", "c1", now.AddDate(0, 0, -40))); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(dbc, record("user-1", "c1", now.AddDate(0, 0, -5))); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(dbc, record("user-2", "c2", now)); err != nil {
		t.Fatal(err)
	}

	count, err := repo.CountSince(dbc, "user-1", now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (outside-window and other-user rows excluded)", count)
	}
}

func TestDeleteByRecordID(t *testing.T) {
	repo := NewViolationRepo(testDB(t), logger.NewNop())
	dbc := dbctx.New(context.Background())

	now := time.Now()
	if err := repo.Create(dbc, record("user-1", "mod-1", now)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(dbc, record("user-1", "mod-1", now)); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(dbc, record("user-1", "mod-2", now)); err != nil {
		t.Fatal(err)
	}

	rows, err := repo.ListByRecordID(dbc, "mod-1")
	if err != nil || len(rows) != 2 {
		t.Fatalf("rows = %v err = %v, want 2 rows", rows, err)
	}
	if err := repo.DeleteByRecordID(dbc, "mod-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	count, err := repo.CountSince(dbc, "user-1", now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count after delete = %d, want 1", count)
	}
}

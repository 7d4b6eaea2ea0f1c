package db

import (
	"testing"
	"time"

	"github.com/friendsincode/tokencast/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := RegisterCallbacks(database); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}
	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func TestMigrateCreatesTables(t *testing.T) {
	database := setupTestDB(t)

	for _, table := range []string{"shows", "segments", "community_interactions"} {
		if !database.Migrator().HasTable(table) {
			t.Errorf("expected table %s", table)
		}
	}

	// Idempotent.
	if err := Migrate(database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSingleLiveShowGuard(t *testing.T) {
	database := setupTestDB(t)
	now := time.Now()

	first := models.Show{ID: uuid.NewString(), ShowNumber: 1, Status: models.ShowLive, StartedAt: &now}
	if err := database.Create(&first).Error; err != nil {
		t.Fatalf("create first show: %v", err)
	}

	second := models.Show{ID: uuid.NewString(), ShowNumber: 2, Status: models.ShowLive, StartedAt: &now}
	if err := database.Create(&second).Error; err == nil {
		t.Fatal("expected second live show to violate the guard")
	}

	done := models.Show{ID: uuid.NewString(), ShowNumber: 3, Status: models.ShowCompleted}
	if err := database.Create(&done).Error; err != nil {
		t.Fatalf("completed shows must not be constrained: %v", err)
	}
}

func TestSegmentNumberUniquePerShow(t *testing.T) {
	database := setupTestDB(t)
	showID := uuid.NewString()

	seg := models.Segment{ID: uuid.NewString(), ShowID: showID, SegmentNumber: 1, Kind: "GAMBA", PlannedSeconds: 360}
	if err := database.Create(&seg).Error; err != nil {
		t.Fatalf("create segment: %v", err)
	}
	dup := models.Segment{ID: uuid.NewString(), ShowID: showID, SegmentNumber: 1, Kind: "GAMBA", PlannedSeconds: 360}
	if err := database.Create(&dup).Error; err == nil {
		t.Fatal("expected duplicate segment number to fail")
	}
}

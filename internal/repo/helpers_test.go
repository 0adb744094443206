package repo

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
)

// newRepoDB opens a file-backed SQLite database with foreign keys on and
// every table migrated.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano())) + "?_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newComplaint(id string, it domain.IssueType, created time.Time) *domain.Complaint {
	return &domain.Complaint{
		TrackingID:  id,
		IssueType:   it,
		Severity:    domain.DefaultSeverity(it),
		Department:  domain.DepartmentFor(it),
		Location:    "Main Street",
		District:    "Lahore",
		Description: "test complaint",
		Modality:    domain.ModalityText,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

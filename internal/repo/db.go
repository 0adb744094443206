// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver), schema migrations and reference data seeding.
package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique constraint violation (tracking ID
// collision, idempotency key reuse, admin username taken).
var ErrDuplicate = errors.New("duplicate")

// connPragmas run on every pooled connection, not just the first one.
var connPragmas = []string{"journal_mode(WAL)", "synchronous(NORMAL)", "foreign_keys(1)", "busy_timeout(5000)"}

func withPragmas(path string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range connPragmas {
		b.WriteString(sep + "_pragma=" + p)
		sep = "&"
	}
	return b.String()
}

// OpenSQLite opens (or creates) a SQLite database with the connection
// PRAGMAs applied per connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(withPragmas(path)), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates every table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Complaint{},
		&domain.ComplaintUpdate{},
		&domain.NotificationLog{},
		&domain.AdminUser{},
		&domain.AdminActivity{},
		&domain.Department{},
		&domain.Idempotency{},
		&domain.User{},
	)
}

// SeedDepartments upserts one row per department with the issue types it
// owns. Existing contact e-mails are preserved.
func SeedDepartments(ctx context.Context, db *gorm.DB) error {
	rows := make([]domain.Department, 0, len(domain.Departments()))
	for _, name := range domain.Departments() {
		types := domain.IssueTypesFor(name)
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		rows = append(rows, domain.Department{Name: name, IssueTypes: strings.Join(names, ",")})
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"issue_types"}),
		}).
		Create(&rows).Error
}

// ListDepartments returns the reference rows ordered by name.
func ListDepartments(ctx context.Context, db *gorm.DB) ([]domain.Department, error) {
	var out []domain.Department
	err := db.WithContext(ctx).Order("name asc").Find(&out).Error
	return out, err
}

// isUniqueViolation reports whether err is a unique constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "primary key must be unique")
}

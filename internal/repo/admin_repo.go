package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
)

// CreateAdmin inserts an operator account. A taken username returns ErrDuplicate.
func CreateAdmin(ctx context.Context, db *gorm.DB, username, passwordHash, fullName, role string) (*domain.AdminUser, error) {
	a := &domain.AdminUser{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(username),
		PasswordHash: passwordHash,
		FullName:     fullName,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return a, nil
}

// GetAdminByUsername returns the account or ErrNotFound.
func GetAdminByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.AdminUser, error) {
	var a domain.AdminUser
	if err := db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CountAdmins returns the number of operator accounts.
func CountAdmins(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.AdminUser{}).Count(&n).Error
	return n, err
}

// TouchAdminLogin stamps LastLogin.
func TouchAdminLogin(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).Model(&domain.AdminUser{}).Where("id = ?", id).Update("last_login", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LogAdminActivity appends an audit row.
func LogAdminActivity(ctx context.Context, db *gorm.DB, adminID, action, trackingID, description string) error {
	row := &domain.AdminActivity{
		ID:          uuid.NewString(),
		AdminID:     adminID,
		ActionType:  action,
		TrackingID:  trackingID,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(row).Error
}

// ListAdminActivity returns the newest audit rows first, capped at limit.
func ListAdminActivity(ctx context.Context, db *gorm.DB, limit int) ([]domain.AdminActivity, error) {
	var out []domain.AdminActivity
	q := db.WithContext(ctx).Order("created_at desc").Order("rowid desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

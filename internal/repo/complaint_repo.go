// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for complaints
// and their append-only status history.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They carry no business rules: the
// status graph is enforced by services.StatusService.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
)

// ComplaintFilter narrows list and count queries. Zero values match all.
type ComplaintFilter struct {
	Status       domain.Status
	IssueType    domain.IssueType
	Severity     domain.Severity
	Department   string
	District     string
	ContactEmail string
	Since        *time.Time
	Until        *time.Time
}

func (f ComplaintFilter) apply(q *gorm.DB) *gorm.DB {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.IssueType != "" {
		q = q.Where("issue_type = ?", f.IssueType)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.Department != "" {
		q = q.Where("department = ?", f.Department)
	}
	if f.District != "" {
		q = q.Where("district = ?", f.District)
	}
	if e := strings.TrimSpace(f.ContactEmail); e != "" {
		q = q.Where("LOWER(contact_email) = ?", strings.ToLower(e))
	}
	if f.Since != nil {
		q = q.Where("created_at >= ?", *f.Since)
	}
	if f.Until != nil {
		q = q.Where("created_at < ?", *f.Until)
	}
	return q
}

// CreateComplaint inserts c. A tracking ID collision returns ErrDuplicate.
func CreateComplaint(ctx context.Context, db *gorm.DB, c *domain.Complaint) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	if c.Status == "" {
		c.Status = domain.StatusPending
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetComplaint fetches a complaint by tracking ID or returns ErrNotFound.
func GetComplaint(ctx context.Context, db *gorm.DB, trackingID string) (*domain.Complaint, error) {
	var c domain.Complaint
	if err := db.WithContext(ctx).Where("tracking_id = ?", trackingID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListComplaints returns a page of complaints, newest first.
func ListComplaints(ctx context.Context, db *gorm.DB, f ComplaintFilter, offset, limit int) ([]domain.Complaint, error) {
	var out []domain.Complaint
	q := f.apply(db.WithContext(ctx).Model(&domain.Complaint{}))
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	err := q.Order("created_at desc").Order("tracking_id desc").Find(&out).Error
	return out, err
}

// CountComplaints returns the number of complaints matching f.
func CountComplaints(ctx context.Context, db *gorm.DB, f ComplaintFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Complaint{})).Count(&total).Error
	return total, err
}

// UpdateStatus overwrites status and updated_at. Admin notes are replaced
// only when notes is non-empty. Returns ErrNotFound if no row matched.
func UpdateStatus(ctx context.Context, db *gorm.DB, trackingID string, status domain.Status, notes string, at time.Time) error {
	updates := map[string]any{"status": status, "updated_at": at}
	if strings.TrimSpace(notes) != "" {
		updates["admin_notes"] = notes
	}
	res := db.WithContext(ctx).
		Model(&domain.Complaint{}).
		Where("tracking_id = ?", trackingID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendHistory inserts one history entry.
func AppendHistory(ctx context.Context, db *gorm.DB, trackingID string, status, previous domain.Status, notes, actor string, at time.Time) (*domain.ComplaintUpdate, error) {
	u := &domain.ComplaintUpdate{
		ID:             uuid.NewString(),
		TrackingID:     trackingID,
		Status:         status,
		PreviousStatus: previous,
		Notes:          notes,
		Actor:          actor,
		UpdatedAt:      at.UTC(),
	}
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// ListHistory returns the history of a complaint, newest first. Entries
// written within the same clock tick keep insertion order via rowid.
func ListHistory(ctx context.Context, db *gorm.DB, trackingID string) ([]domain.ComplaintUpdate, error) {
	var out []domain.ComplaintUpdate
	err := db.WithContext(ctx).
		Where("tracking_id = ?", trackingID).
		Order("updated_at desc").
		Order("rowid desc").
		Find(&out).Error
	return out, err
}

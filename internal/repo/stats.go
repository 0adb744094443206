// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate queries behind the admin
// dashboard and the conditional (ETag) responses of the history endpoint.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
)

// StatsRow is the projection of a complaint used for aggregation.
type StatsRow struct {
	IssueType  string
	Severity   string
	Status     string
	Department string
	District   string
	CreatedAt  time.Time
}

// ListAllForStats returns the aggregation columns of every complaint
// matching f, oldest first.
func ListAllForStats(ctx context.Context, db *gorm.DB, f ComplaintFilter) ([]StatsRow, error) {
	var out []StatsRow
	q := f.apply(db.WithContext(ctx).Model(&domain.Complaint{})).
		Select("issue_type, severity, status, department, district, created_at")
	err := q.Order("created_at asc").Scan(&out).Error
	return out, err
}

// HistoryStats returns the number of history entries for a complaint and the
// newest UpdatedAt among them (nil when there are none).
func HistoryStats(ctx context.Context, db *gorm.DB, trackingID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.ComplaintUpdate{}).Where("tracking_id = ?", trackingID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Avoid MAX() -> TEXT in SQLite.
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

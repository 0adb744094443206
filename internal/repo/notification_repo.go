package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
)

// LogNotification records one delivery attempt.
func LogNotification(ctx context.Context, db *gorm.DB, n *domain.NotificationLog) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(n).Error
}

// ListNotifications returns the delivery log of a complaint, newest first.
func ListNotifications(ctx context.Context, db *gorm.DB, trackingID string) ([]domain.NotificationLog, error) {
	var out []domain.NotificationLog
	err := db.WithContext(ctx).
		Where("tracking_id = ?", trackingID).
		Order("sent_at desc").
		Order("rowid desc").
		Find(&out).Error
	return out, err
}

package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/civic-complaints-backend/internal/classify"
	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
	"github.com/tbourn/civic-complaints-backend/internal/trackingid"
)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// zeroReader makes trackingid deterministic: every ID is PREFIX-000...
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []string
	changed []string
}

func (r *recordingNotifier) ComplaintCreated(_ context.Context, c *domain.Complaint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, c.TrackingID)
}

func (r *recordingNotifier) StatusChanged(_ context.Context, c *domain.Complaint, prev domain.Status, notes string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, fmt.Sprintf("%s:%s->%s:%s", c.TrackingID, prev, c.Status, notes))
}

func newComplaintService(t *testing.T, db *gorm.DB) *ComplaintService {
	t.Helper()
	return &ComplaintService{
		DB:         db,
		Classifier: classify.NewPipeline(nil, nil, nil, time.Second),
		IDs:        trackingid.New("CIV", 8),
	}
}

func submitText(t *testing.T, s *ComplaintService, text string) *domain.Complaint {
	t.Helper()
	c, err := s.Submit(context.Background(), Submission{Text: text, Location: "Main Street", District: "Lahore"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return c
}

// Package handlers exposes the complaint API over HTTP.
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses (including
// conditional and replayed responses).
package handlers

import (
	"context"
	"io"
	"time"

	"golang.org/x/text/language"

	"github.com/tbourn/civic-complaints-backend/internal/classify"
	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// ComplaintService covers citizen-facing intake and lookup.
type ComplaintService interface {
	Submit(ctx context.Context, sub services.Submission) (*domain.Complaint, error)
	Get(ctx context.Context, trackingID string) (*domain.Complaint, error)
	History(ctx context.Context, trackingID string) ([]domain.ComplaintUpdate, error)
	// HistoryVersion returns the history row count and newest timestamp.
	HistoryVersion(ctx context.Context, trackingID string) (int64, *time.Time, error)
	List(ctx context.Context, f services.ListFilter, page, pageSize int) ([]domain.Complaint, int64, error)
	Letter(ctx context.Context, trackingID, lang string) (string, language.Tag, bool, error)
	Departments(ctx context.Context) ([]domain.Department, error)
}

// StatusService moves complaints through the status graph.
type StatusService interface {
	UpdateStatus(ctx context.Context, actor services.Actor, trackingID, status, notes string) (*domain.Complaint, error)
	NextStatuses(ctx context.Context, trackingID string) ([]domain.Status, error)
}

// StatsService aggregates dashboard figures.
type StatsService interface {
	Stats(ctx context.Context, f services.ListFilter) (services.Stats, error)
}

// AdminService covers operator sign-in and the audit trail.
type AdminService interface {
	Login(ctx context.Context, username, password string) (*services.LoginResult, error)
	Activity(ctx context.Context, limit int) ([]domain.AdminActivity, error)
	Notifications(ctx context.Context, trackingID string) ([]domain.NotificationLog, error)
	Record(ctx context.Context, adminID, action, trackingID, description string)
}

// CitizenService covers citizen accounts and their own complaints.
type CitizenService interface {
	Register(ctx context.Context, r services.Registration) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*services.CitizenLoginResult, error)
	Complaints(ctx context.Context, userID string, page, pageSize int) ([]domain.Complaint, int64, error)
}

// ExportService renders filtered complaint sets as downloadable files.
type ExportService interface {
	FileName(ext string) string
	CSV(ctx context.Context, f services.ListFilter, w io.Writer) error
	XLSX(ctx context.Context, f services.ListFilter, w io.Writer) error
}

// Classifier previews the taxonomy for free text without filing anything.
type Classifier interface {
	ClassifyText(ctx context.Context, text string, lang language.Tag) classify.Result
}

//
// Handler wiring
//

// Options carries the handler dependencies. Idempotency may be nil, which
// disables replay of resubmitted complaints.
type Options struct {
	Complaints  ComplaintService
	Status      StatusService
	Stats       StatsService
	Admin       AdminService
	Citizens    CitizenService
	Export      ExportService
	Classifier  Classifier
	Idempotency IdempotencyStore

	// MaxUploadBytes caps each uploaded photo or voice note.
	MaxUploadBytes int64
	// Location interprets date-only filter values; nil means UTC.
	Location *time.Location
}

// Handlers groups the public and admin HTTP endpoints.
type Handlers struct {
	complaints ComplaintService
	status     StatusService
	stats      StatsService
	admin      AdminService
	citizens   CitizenService
	export     ExportService
	classifier Classifier
	idem       IdempotencyStore

	maxUpload int64
	loc       *time.Location
}

// New constructs and returns a Handlers instance bound to the given services.
func New(o Options) *Handlers {
	h := &Handlers{
		complaints: o.Complaints,
		status:     o.Status,
		stats:      o.Stats,
		admin:      o.Admin,
		citizens:   o.Citizens,
		export:     o.Export,
		classifier: o.Classifier,
		idem:       o.Idempotency,
		maxUpload:  o.MaxUploadBytes,
		loc:        o.Location,
	}
	if h.maxUpload <= 0 {
		h.maxUpload = 10 << 20
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.classifier == nil {
		h.classifier = classify.NewPipeline(nil, nil, nil, 0)
	}
	return h
}

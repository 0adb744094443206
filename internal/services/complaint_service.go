// Package services – ComplaintService
//
// ComplaintService owns citizen intake: it validates a submission, funnels
// text, photo or voice evidence through the classification pipeline, stores
// evidence blobs, allocates a tracking ID and persists the complaint together
// with its initial Pending history entry. It also serves the public read
// paths (lookup, history) and the formal letter.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the tracking ID where one is known.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/classify"
	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/letter"
	"github.com/tbourn/civic-complaints-backend/internal/observability"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
	"github.com/tbourn/civic-complaints-backend/internal/storage"
	"github.com/tbourn/civic-complaints-backend/internal/trackingid"
	"github.com/tbourn/civic-complaints-backend/internal/utils"
)

// Classifier turns evidence into a taxonomy triple. *classify.Pipeline
// implements it; it never fails.
type Classifier interface {
	ClassifyText(ctx context.Context, text string, lang language.Tag) classify.Result
	ClassifyImage(ctx context.Context, image []byte, lang language.Tag) classify.Result
	ClassifyAudio(ctx context.Context, audio []byte, lang language.Tag) classify.Result
}

// Notifier tells citizens about complaint events. *notify.Dispatcher
// implements it. Implementations must swallow their own failures.
type Notifier interface {
	ComplaintCreated(ctx context.Context, c *domain.Complaint)
	StatusChanged(ctx context.Context, c *domain.Complaint, previous domain.Status, notes string)
}

// Submission is one citizen report. At least one of Text, Image or Audio
// must be present, and Location is required.
type Submission struct {
	Text         string
	Location     string
	District     string
	ContactEmail string
	ContactPhone string
	Language     string
	Notes        string
	Image        []byte
	Audio        []byte
}

// DefaultMaxAttempts bounds tracking ID regeneration on collision.
const DefaultMaxAttempts = 5

// ComplaintService coordinates complaint intake and public reads.
type ComplaintService struct {
	DB         *gorm.DB
	Classifier Classifier
	IDs        *trackingid.Generator

	// Optional collaborators.
	Store    storage.Store
	Notifier Notifier
	Letters  letter.Generator
	// Detach runs post-commit work outside the request; nil runs it inline.
	Detach func(ctx context.Context, fn func(ctx context.Context))

	MaxAttempts  int
	MaxTextRunes int
	Now          func() time.Time
}

func (s *ComplaintService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ComplaintService) ids() *trackingid.Generator {
	if s.IDs == nil {
		s.IDs = trackingid.New(trackingid.DefaultPrefix, trackingid.DefaultDigits)
	}
	return s.IDs
}

// Submit validates, classifies and persists a complaint. Classification and
// notification problems degrade gracefully; only validation, persistence
// and tracking ID exhaustion are returned as errors.
func (s *ComplaintService) Submit(ctx context.Context, sub Submission) (*domain.Complaint, error) {
	ctx, span := otel.Tracer("services/ComplaintService").Start(ctx, "Submit")
	defer span.End()

	sub, modality, err := s.validate(sub)
	if err != nil {
		return nil, err
	}

	var ext string
	switch modality {
	case domain.ModalityImage:
		ext, err = sniffExt(sub.Image, storage.KindImage)
	case domain.ModalityAudio:
		ext, err = sniffExt(sub.Audio, storage.KindAudio)
	}
	if err != nil {
		return nil, err
	}

	lang := letter.Match(sub.Language)
	var res classify.Result
	switch modality {
	case domain.ModalityImage:
		res = s.Classifier.ClassifyImage(ctx, sub.Image, lang)
	case domain.ModalityAudio:
		res = s.Classifier.ClassifyAudio(ctx, sub.Audio, lang)
	default:
		res = s.Classifier.ClassifyText(ctx, sub.Text, lang)
	}
	span.SetAttributes(
		attribute.String("complaint.issue_type", string(res.IssueType)),
		attribute.String("complaint.modality", string(modality)),
	)

	c := &domain.Complaint{
		IssueType:    res.IssueType,
		Severity:     res.Severity,
		Department:   domain.DepartmentFor(res.IssueType),
		Status:       domain.StatusPending,
		Location:     sub.Location,
		District:     sub.District,
		Description:  describe(modality, res.Evidence, sub.Text, sub.Notes),
		EvidenceText: res.Evidence,
		Modality:     modality,
		Language:     lang.String(),
		Classifier:   res.Provider,
		ContactEmail: sub.ContactEmail,
		ContactPhone: sub.ContactPhone,
	}

	if err := s.create(ctx, c, sub, ext); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("complaint.tracking_id", c.TrackingID))

	observability.ComplaintsSubmitted.WithLabelValues(string(c.IssueType), string(c.Severity), string(c.Modality)).Inc()
	zerolog.Ctx(ctx).Info().
		Str("tracking_id", c.TrackingID).
		Str("issue_type", string(c.IssueType)).
		Str("classifier", c.Classifier).
		Bool("degraded", res.Degraded).
		Msg("complaint submitted")

	if s.Notifier != nil {
		created := *c
		s.detach(ctx, func(ctx context.Context) { s.Notifier.ComplaintCreated(ctx, &created) })
	}
	return c, nil
}

func (s *ComplaintService) validate(sub Submission) (Submission, domain.Modality, error) {
	sub.Text = strings.TrimSpace(sub.Text)
	sub.Location = strings.TrimSpace(sub.Location)
	sub.District = strings.TrimSpace(sub.District)
	sub.Notes = strings.TrimSpace(sub.Notes)
	sub.ContactEmail = strings.TrimSpace(sub.ContactEmail)
	sub.ContactPhone = strings.TrimSpace(sub.ContactPhone)

	modality := domain.ModalityText
	switch {
	case len(sub.Image) > 0:
		modality = domain.ModalityImage
	case len(sub.Audio) > 0:
		modality = domain.ModalityAudio
	case sub.Text == "":
		return sub, "", ErrMissingContent
	}
	if sub.Location == "" {
		return sub, "", ErrMissingLocation
	}
	if s.MaxTextRunes > 0 && utf8.RuneCountInString(sub.Text)+utf8.RuneCountInString(sub.Notes) > s.MaxTextRunes {
		return sub, "", ErrTooLong
	}
	if sub.ContactEmail != "" {
		email, err := normalizeEmail(sub.ContactEmail)
		if err != nil {
			return sub, "", err
		}
		sub.ContactEmail = email
	}
	return sub, modality, nil
}

func sniffExt(data []byte, kind storage.Kind) (string, error) {
	d, _, err := storage.Sniff(bytes.NewReader(data), kind)
	if err != nil {
		return "", ErrUnsupportedMedia
	}
	return d.Extension, nil
}

// describe builds the stored description: the evidence text (caption or
// transcript) or citizen text, plus any notes.
func describe(modality domain.Modality, evidence, text, notes string) string {
	parts := make([]string, 0, 3)
	if modality == domain.ModalityText {
		parts = append(parts, text)
	} else {
		if evidence != "" {
			parts = append(parts, evidence)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	if notes != "" {
		parts = append(parts, "Additional notes: "+notes)
	}
	return strings.Join(parts, "\n\n")
}

// create allocates a tracking ID, uploads evidence under it and writes the
// complaint plus its initial history entry in one transaction. A collision
// discards the uploaded blob and retries with a fresh ID.
func (s *ComplaintService) create(ctx context.Context, c *domain.Complaint, sub Submission, ext string) error {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	lg := zerolog.Ctx(ctx)

	for i := 0; i < attempts; i++ {
		id, err := s.ids().Next()
		if err != nil {
			return fmt.Errorf("generate tracking id: %w", err)
		}
		now := s.now()
		c.TrackingID = id
		c.CreatedAt, c.UpdatedAt = now, now
		c.ImageRef, c.AudioRef = "", ""

		key := s.uploadEvidence(ctx, c, sub, ext, now)

		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := repo.CreateComplaint(ctx, tx, c); err != nil {
				return err
			}
			_, err := repo.AppendHistory(ctx, tx, c.TrackingID, domain.StatusPending, "", "Complaint submitted", "citizen", now)
			return err
		})
		if err == nil {
			return nil
		}
		if key != "" {
			if derr := s.Store.Delete(ctx, key); derr != nil && !errors.Is(derr, storage.ErrNotFound) {
				lg.Warn().Err(derr).Str("key", key).Msg("discard evidence blob")
			}
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			return err
		}
		lg.Warn().Str("tracking_id", id).Int("attempt", i+1).Msg("tracking id collision; regenerating")
	}
	return ErrTrackingIDExhausted
}

// uploadEvidence stores the photo or voice note. Failure is logged and the
// complaint is filed without a reference.
func (s *ComplaintService) uploadEvidence(ctx context.Context, c *domain.Complaint, sub Submission, ext string, at time.Time) string {
	if s.Store == nil {
		return ""
	}
	var data []byte
	var contentType string
	switch c.Modality {
	case domain.ModalityImage:
		data, contentType = sub.Image, "image/"+ext
	case domain.ModalityAudio:
		data, contentType = sub.Audio, "audio/"+ext
	default:
		return ""
	}
	key := storage.EvidenceKey(c.TrackingID, at, ext)
	if _, err := s.Store.Put(ctx, key, bytes.NewReader(data), contentType); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("tracking_id", c.TrackingID).Msg("evidence upload failed")
		return ""
	}
	if c.Modality == domain.ModalityImage {
		c.ImageRef = key
	} else {
		c.AudioRef = key
	}
	return key
}

func (s *ComplaintService) detach(ctx context.Context, fn func(ctx context.Context)) {
	if s.Detach != nil {
		s.Detach(ctx, fn)
		return
	}
	fn(ctx)
}

// Get returns a complaint by tracking ID.
func (s *ComplaintService) Get(ctx context.Context, trackingID string) (*domain.Complaint, error) {
	ctx, span := otel.Tracer("services/ComplaintService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("complaint.tracking_id", trackingID)))
	defer span.End()

	c, err := repo.GetComplaint(ctx, s.DB, strings.TrimSpace(trackingID))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrComplaintNotFound
	}
	return c, err
}

// History returns the status history newest first.
func (s *ComplaintService) History(ctx context.Context, trackingID string) ([]domain.ComplaintUpdate, error) {
	trackingID = strings.TrimSpace(trackingID)
	ctx, span := otel.Tracer("services/ComplaintService").Start(ctx, "History",
		trace.WithAttributes(attribute.String("complaint.tracking_id", trackingID)))
	defer span.End()

	if _, err := s.Get(ctx, trackingID); err != nil {
		return nil, err
	}
	return repo.ListHistory(ctx, s.DB, trackingID)
}

// HistoryVersion returns the number of history rows and the newest
// timestamp, for conditional responses.
func (s *ComplaintService) HistoryVersion(ctx context.Context, trackingID string) (int64, *time.Time, error) {
	return repo.HistoryStats(ctx, s.DB, strings.TrimSpace(trackingID))
}

// ListFilter is the validated form of admin list/stats filters.
type ListFilter struct {
	Status    string
	IssueType string
	Severity  string
	District  string
	Since     *time.Time
	Until     *time.Time
}

// toRepo validates enum filters. Issue type and severity are matched
// case-insensitively; status must match exactly.
func (f ListFilter) toRepo() (repo.ComplaintFilter, error) {
	out := repo.ComplaintFilter{District: strings.TrimSpace(f.District), Since: f.Since, Until: f.Until}
	if v := strings.TrimSpace(f.Status); v != "" {
		st, ok := domain.ParseStatus(v)
		if !ok {
			return out, fmt.Errorf("%w: status %q", ErrInvalidFilter, v)
		}
		out.Status = st
	}
	if v := strings.TrimSpace(f.IssueType); v != "" {
		it, ok := domain.ParseIssueType(v)
		if !ok {
			return out, fmt.Errorf("%w: issue_type %q", ErrInvalidFilter, v)
		}
		out.IssueType = it
	}
	if v := strings.TrimSpace(f.Severity); v != "" {
		sv, ok := domain.ParseSeverity(v)
		if !ok {
			return out, fmt.Errorf("%w: severity %q", ErrInvalidFilter, v)
		}
		out.Severity = sv
	}
	return out, nil
}

// List returns a filtered page of complaints, newest first, and the total.
func (s *ComplaintService) List(ctx context.Context, f ListFilter, page, pageSize int) ([]domain.Complaint, int64, error) {
	ctx, span := otel.Tracer("services/ComplaintService").Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	rf, err := f.toRepo()
	if err != nil {
		return nil, 0, err
	}
	return s.page(ctx, rf, page, pageSize)
}

func (s *ComplaintService) page(ctx context.Context, f repo.ComplaintFilter, page, pageSize int) ([]domain.Complaint, int64, error) {
	return pageComplaints(ctx, s.DB, f, page, pageSize)
}

// fields checks single values against validator tags.
var fields = validator.New(validator.WithRequiredStructEnabled())

// normalizeEmail validates a bare address and lowercases it.
func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if err := fields.Var(email, "required,email,max=255"); err != nil {
		return "", ErrInvalidContact
	}
	return strings.ToLower(email), nil
}

func pageComplaints(ctx context.Context, db *gorm.DB, f repo.ComplaintFilter, page, pageSize int) ([]domain.Complaint, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountComplaints(ctx, db, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Complaint{}, 0, nil
	}
	items, err := repo.ListComplaints(ctx, db, f, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Letter drafts the formal complaint letter. The bool reports whether the
// fixed template was used instead of the generator.
func (s *ComplaintService) Letter(ctx context.Context, trackingID, lang string) (string, language.Tag, bool, error) {
	ctx, span := otel.Tracer("services/ComplaintService").Start(ctx, "Letter",
		trace.WithAttributes(attribute.String("complaint.tracking_id", trackingID)))
	defer span.End()

	c, err := s.Get(ctx, trackingID)
	if err != nil {
		return "", language.Und, false, err
	}
	tag := letter.Match(lang)
	if strings.TrimSpace(lang) == "" && c.Language != "" {
		tag = letter.Match(c.Language)
	}
	text, templated := letter.Compose(ctx, s.Letters, letter.FieldsFrom(c), tag)
	return text, tag, templated, nil
}

// Departments lists the routing directory: every department and the issue
// types it handles.
func (s *ComplaintService) Departments(ctx context.Context) ([]domain.Department, error) {
	return repo.ListDepartments(ctx, s.DB)
}

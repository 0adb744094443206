package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"github.com/tbourn/civic-complaints-backend/internal/classify"
	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
	"github.com/tbourn/civic-complaints-backend/internal/storage"
	"github.com/tbourn/civic-complaints-backend/internal/trackingid"
)

func TestSubmit_PotholeScenario(t *testing.T) {
	db := newSvcDB(t)
	n := &recordingNotifier{}
	s := newComplaintService(t, db)
	s.Notifier = n

	c := submitText(t, s, "There is a big pothole on Main Street")

	if c.IssueType != domain.IssueTypePothole || c.Severity != domain.SeverityHigh ||
		c.Department != "Roads & Highways Department" || c.Status != domain.StatusPending {
		t.Fatalf("unexpected complaint %+v", c)
	}
	if !s.IDs.Valid(c.TrackingID) {
		t.Fatalf("bad tracking id %q", c.TrackingID)
	}
	h, err := repo.ListHistory(context.Background(), db, c.TrackingID)
	if err != nil || len(h) != 1 || h[0].Status != domain.StatusPending {
		t.Fatalf("initial history missing: %+v %v", h, err)
	}
	if len(n.created) != 1 || n.created[0] != c.TrackingID {
		t.Fatalf("confirmation not dispatched: %v", n.created)
	}
}

func TestSubmit_Validation_NothingPersisted(t *testing.T) {
	db := newSvcDB(t)
	s := newComplaintService(t, db)
	ctx := context.Background()

	cases := []struct {
		sub  Submission
		want error
	}{
		{Submission{Location: "Main Street"}, ErrMissingContent},
		{Submission{Text: "   ", Location: "Main Street"}, ErrMissingContent},
		{Submission{Text: "pothole", Location: "  "}, ErrMissingLocation},
		{Submission{Text: "pothole", Location: "x", ContactEmail: "not-an-email"}, ErrInvalidContact},
		{Submission{Image: []byte("definitely not a picture"), Location: "x"}, ErrUnsupportedMedia},
	}
	for _, tc := range cases {
		_, err := s.Submit(ctx, tc.sub)
		if !errors.Is(err, tc.want) || !errors.Is(err, ErrValidation) {
			t.Errorf("%+v: got %v want %v", tc.sub, err, tc.want)
		}
	}
	if n, _ := repo.CountComplaints(ctx, db, repo.ComplaintFilter{}); n != 0 {
		t.Fatalf("validation failures persisted %d rows", n)
	}
}

func TestSubmit_NoKeywordMatch_IsOther(t *testing.T) {
	s := newComplaintService(t, newSvcDB(t))
	c := submitText(t, s, "The neighbours play loud music at night")
	if c.IssueType != domain.IssueTypeOther || c.Severity != domain.SeverityLow || c.Department != domain.DeptGeneral {
		t.Fatalf("unexpected %+v", c)
	}
}

func TestSubmit_TrackingIDCollision_RetriesThenExhausts(t *testing.T) {
	db := newSvcDB(t)
	s := newComplaintService(t, db)
	s.IDs = &trackingid.Generator{Prefix: "CIV", Digits: 8, Rand: zeroReader{}}
	s.MaxAttempts = 3

	first := submitText(t, s, "garbage pile")
	if first.TrackingID != "CIV-00000000" {
		t.Fatalf("deterministic id expected, got %q", first.TrackingID)
	}
	_, err := s.Submit(context.Background(), Submission{Text: "garbage pile", Location: "x"})
	if !errors.Is(err, ErrTrackingIDExhausted) {
		t.Fatalf("want ErrTrackingIDExhausted, got %v", err)
	}
	if n, _ := repo.CountComplaints(context.Background(), db, repo.ComplaintFilter{}); n != 1 {
		t.Fatalf("collision must not persist anything, rows=%d", n)
	}
}

var pngBytes = append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}, bytes.Repeat([]byte{7}, 300)...)

type stubCaptioner string

func (s stubCaptioner) Caption(context.Context, []byte) string { return string(s) }

func TestSubmit_Image_StoresEvidenceAndCaption(t *testing.T) {
	db := newSvcDB(t)
	store, err := storage.NewLocal(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	s := newComplaintService(t, db)
	s.Store = store
	s.Classifier = classify.NewPipeline(nil, stubCaptioner("water leaking from a broken pipe"), nil, 0)

	c, err := s.Submit(context.Background(), Submission{Image: pngBytes, Location: "Block 7", Notes: "since Monday"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Modality != domain.ModalityImage || c.IssueType != domain.IssueTypeWaterLeak {
		t.Fatalf("unexpected %+v", c)
	}
	if !strings.HasPrefix(c.Description, "water leaking") || !strings.Contains(c.Description, "Additional notes: since Monday") {
		t.Fatalf("description %q", c.Description)
	}
	if !strings.HasPrefix(c.ImageRef, "complaints/"+c.TrackingID+"_") || !strings.HasSuffix(c.ImageRef, ".png") {
		t.Fatalf("image ref %q", c.ImageRef)
	}
	rc, err := store.Get(context.Background(), c.ImageRef)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, pngBytes) {
		t.Fatalf("stored bytes differ")
	}
}

func TestGet_IdempotentAndNotFound(t *testing.T) {
	s := newComplaintService(t, newSvcDB(t))
	c := submitText(t, s, "streetlight not working")
	a, err := s.Get(context.Background(), c.TrackingID)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := s.Get(context.Background(), c.TrackingID)
	if a.TrackingID != b.TrackingID || a.Status != b.Status || a.Description != b.Description || !a.CreatedAt.Equal(b.CreatedAt) {
		t.Fatalf("two reads differ: %+v vs %+v", a, b)
	}
	if _, err := s.Get(context.Background(), "CIV-999999"); !errors.Is(err, ErrComplaintNotFound) {
		t.Fatalf("want ErrComplaintNotFound, got %v", err)
	}
	if _, err := s.History(context.Background(), "CIV-999999"); !errors.Is(err, ErrComplaintNotFound) {
		t.Fatalf("history of missing complaint: %v", err)
	}
}

func TestHistory_TrimsTrackingID(t *testing.T) {
	s := newComplaintService(t, newSvcDB(t))
	c := submitText(t, s, "water leak in the street")

	h, err := s.History(context.Background(), "  "+c.TrackingID+"\t")
	if err != nil || len(h) != 1 || h[0].TrackingID != c.TrackingID {
		t.Fatalf("padded id: %+v %v", h, err)
	}
	n, newest, err := s.HistoryVersion(context.Background(), " "+c.TrackingID+" ")
	if err != nil || n != 1 || newest == nil {
		t.Fatalf("padded version: %d %v %v", n, newest, err)
	}
}

func TestSubmit_OnProductionSchema(t *testing.T) {
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "civic.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	var fk int
	if err := db.Raw("PRAGMA foreign_keys").Scan(&fk).Error; err != nil || fk != 1 {
		t.Fatalf("foreign keys should be enforced: %d %v", fk, err)
	}

	s := newComplaintService(t, db)
	c, err := s.Submit(context.Background(), Submission{Text: "There is a big pothole on Main Street", Location: "Main Street"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c.IssueType != domain.IssueTypePothole || c.Status != domain.StatusPending {
		t.Fatalf("unexpected complaint %+v", c)
	}
	h, err := s.History(context.Background(), c.TrackingID)
	if err != nil || len(h) != 1 || h[0].Status != domain.StatusPending {
		t.Fatalf("history: %+v %v", h, err)
	}
}

func TestList_FiltersAndContact(t *testing.T) {
	s := newComplaintService(t, newSvcDB(t))
	ctx := context.Background()
	submitText(t, s, "pothole near school")
	submitText(t, s, "garbage everywhere")
	filed, err := s.Submit(ctx, Submission{Text: "sewage overflow", Location: "x", ContactEmail: " Ali@Example.org "})
	if err != nil || filed.ContactEmail != "ali@example.org" {
		t.Fatalf("contact should be stored normalized: %+v %v", filed, err)
	}
	if _, err := s.Submit(ctx, Submission{Text: "sewage overflow", Location: "x", ContactEmail: "Ali <ali@example.org>"}); !errors.Is(err, ErrInvalidContact) {
		t.Fatalf("display-name address must be rejected: %v", err)
	}

	items, total, err := s.List(ctx, ListFilter{IssueType: "pothole"}, 1, 10)
	if err != nil || total != 1 || items[0].IssueType != domain.IssueTypePothole {
		t.Fatalf("list: %v %d %v", items, total, err)
	}
	if _, _, err := s.List(ctx, ListFilter{Status: "Done"}, 1, 10); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("invalid filter: %v", err)
	}
}

func TestLetter_TemplateFallbackAndLanguage(t *testing.T) {
	s := newComplaintService(t, newSvcDB(t))
	c := submitText(t, s, "broken streetlight on the corner")

	text, tag, templated, err := s.Letter(context.Background(), c.TrackingID, "ur")
	if err != nil || !templated || tag != language.Urdu || !strings.Contains(text, c.TrackingID) {
		t.Fatalf("letter: %q %v %v %v", text, tag, templated, err)
	}
	text, tag, _, _ = s.Letter(context.Background(), c.TrackingID, "")
	if tag != language.English || !strings.HasPrefix(text, "Subject:") {
		t.Fatalf("default letter: %v %q", tag, text)
	}
	if _, _, _, err := s.Letter(context.Background(), "CIV-404", "en"); !errors.Is(err, ErrComplaintNotFound) {
		t.Fatalf("missing: %v", err)
	}
}

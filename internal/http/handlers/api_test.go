package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/civic-complaints-backend/internal/auth"
	"github.com/tbourn/civic-complaints-backend/internal/classify"
	"github.com/tbourn/civic-complaints-backend/internal/http/middleware"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
	"github.com/tbourn/civic-complaints-backend/internal/services"
	"github.com/tbourn/civic-complaints-backend/internal/trackingid"
)

// ---------- test DB + router ----------

type testAPI struct {
	r      *gin.Engine
	db     *gorm.DB
	tokens *auth.TokenManager
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := repo.SeedDepartments(context.Background(), db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

// newTestAPI wires real services over an in-memory database, the same way
// the router does, with a small upload cap.
func newTestAPI(t *testing.T, maxUpload int64) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	tokens := auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour, "test")
	pipeline := classify.NewPipeline(nil, nil, nil, time.Second)
	idem := DBIdempotency{DB: db, TTL: time.Hour}

	h := New(Options{
		Complaints:     &services.ComplaintService{DB: db, Classifier: pipeline, IDs: trackingid.New("CIV", 8)},
		Status:         &services.StatusService{DB: db},
		Stats:          &services.StatsService{DB: db, Location: time.UTC},
		Admin:          &services.AdminService{DB: db, Tokens: tokens},
		Citizens:       &services.CitizenService{DB: db, Tokens: tokens},
		Export:         &services.ExportService{DB: db, Location: time.UTC},
		Classifier:     pipeline,
		Idempotency:    idem,
		MaxUploadBytes: maxUpload,
	})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, idem.Exists))
	r.POST("/auth/register", h.RegisterCitizen)
	r.POST("/auth/login", h.CitizenLogin)
	r.POST("/complaints", middleware.OptionalCitizen(tokens), h.SubmitComplaint)
	r.GET("/complaints", middleware.RequireCitizen(tokens), h.ListMyComplaints)
	r.GET("/complaints/:id", h.GetComplaint)
	r.GET("/complaints/:id/history", h.ComplaintHistory)
	r.GET("/complaints/:id/letter", h.ComplaintLetter)
	r.POST("/classify", h.ClassifyText)
	r.GET("/departments", h.ListDepartments)
	r.POST("/admin/login", h.AdminLogin)

	adm := r.Group("/admin", middleware.RequireAdmin(tokens))
	adm.GET("/complaints", h.AdminListComplaints)
	adm.GET("/complaints/export", h.ExportComplaints)
	adm.PATCH("/complaints/:id/status", h.UpdateComplaintStatus)
	adm.GET("/complaints/:id/next-statuses", h.NextStatuses)
	adm.GET("/complaints/:id/notifications", h.ComplaintNotifications)
	adm.GET("/stats", h.AdminStats)
	adm.GET("/activity", h.AdminActivity)

	return &testAPI{r: r, db: db, tokens: tokens}
}

func (a *testAPI) do(method, path string, body io.Reader, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil && hdr["Content-Type"] == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func (a *testAPI) submit(t *testing.T, payload map[string]string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(payload)
	return a.do(http.MethodPost, "/complaints", bytes.NewReader(b), hdr)
}

func (a *testAPI) file(t *testing.T, description string) SubmitComplaintResponse {
	t.Helper()
	w := a.submit(t, map[string]string{
		"description":   description,
		"location":      "Main Boulevard",
		"district":      "Lahore",
		"contact_email": "citizen@example.com",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit status=%d body=%s", w.Code, w.Body.String())
	}
	var resp SubmitComplaintResponse
	decode(t, w, &resp)
	return resp
}

// adminToken creates an operator account and signs in through the API.
func (a *testAPI) adminToken(t *testing.T) string {
	t.Helper()
	hash, err := auth.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := repo.CreateAdmin(context.Background(), a.db, "ops", hash, "Ops", "admin"); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	w := a.do(http.MethodPost, "/admin/login", bytes.NewBufferString(`{"username":"ops","password":"s3cret-pass"}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", w.Code, w.Body.String())
	}
	var res struct {
		Token struct {
			AccessToken string `json:"access_token"`
		} `json:"token"`
	}
	decode(t, w, &res)
	if res.Token.AccessToken == "" {
		t.Fatalf("empty access token")
	}
	return res.Token.AccessToken
}

// citizenToken registers a citizen account and signs in through the API.
func (a *testAPI) citizenToken(t *testing.T, email string) string {
	t.Helper()
	reg := fmt.Sprintf(`{"email":%q,"password":"long-enough-pw"}`, email)
	if w := a.do(http.MethodPost, "/auth/register", bytes.NewBufferString(reg), nil); w.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", w.Code, w.Body.String())
	}
	login := fmt.Sprintf(`{"email":%q,"password":"long-enough-pw"}`, email)
	w := a.do(http.MethodPost, "/auth/login", bytes.NewBufferString(login), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", w.Code, w.Body.String())
	}
	var res services.CitizenLoginResult
	decode(t, w, &res)
	if res.Token == nil || res.Token.AccessToken == "" {
		t.Fatalf("empty access token")
	}
	return res.Token.AccessToken
}

func bearerHdr(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("json: %v body=%s", err, w.Body.String())
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	decode(t, w, &er)
	return er.Code
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field: %v", err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, "evidence.bin")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

var pngHeader = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/civic-complaints-backend/internal/auth"
	"github.com/tbourn/civic-complaints-backend/internal/classify"
	"github.com/tbourn/civic-complaints-backend/internal/config"
	"github.com/tbourn/civic-complaints-backend/internal/http/middleware"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
	"github.com/tbourn/civic-complaints-backend/internal/services"
	"github.com/tbourn/civic-complaints-backend/internal/trackingid"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newDeps(t *testing.T, db *gorm.DB) Deps {
	t.Helper()
	tokens := auth.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour, "test")
	pipeline := classify.NewPipeline(nil, nil, nil, time.Second)
	return Deps{
		DB:         db,
		Complaints: &services.ComplaintService{DB: db, Classifier: pipeline, IDs: trackingid.New("CIV", 8)},
		Status:     &services.StatusService{DB: db},
		Stats:      &services.StatsService{DB: db, Location: time.UTC},
		Admin:      &services.AdminService{DB: db, Tokens: tokens},
		Citizens:   &services.CitizenService{DB: db, Tokens: tokens},
		Export:     &services.ExportService{DB: db, Location: time.UTC},
		Classifier: pipeline,
		Tokens:     tokens,
	}
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      10,
		RateWindow:     time.Minute,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL: time.Hour,
		StatsLocation:  time.UTC,
		Storage:        config.StorageConfig{MaxUploadBytes: 1 << 20},
	}
}

func newRouter(t *testing.T, cfg config.Config, mutate func(*Deps)) (*gin.Engine, Deps) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	d := newDeps(t, newTestDB(t))
	if mutate != nil {
		mutate(&d)
	}
	RegisterRoutes(r, d, cfg)
	return r, d
}

func serve(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const complaintJSON = `{"description":"overflowing garbage bins","location":"Liberty Market","district":"Lahore"}`

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newRouter(t, baseConfig(), nil)

	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	w = serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w := serve(r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := baseConfig()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	r, _ := newRouter(t, cfg, nil)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	w = serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://evil.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "http://evil.example" {
		t.Fatalf("unlisted origin must not be echoed")
	}
}

func TestRegisterRoutes_SubmitAndTrack(t *testing.T) {
	r, _ := newRouter(t, baseConfig(), nil)

	w := serve(r, http.MethodPost, "/api/v1/complaints", complaintJSON, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		TrackingID string `json:"tracking_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}

	w = serve(r, http.MethodGet, "/api/v1/complaints/"+resp.TrackingID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("track = %d", w.Code)
	}

	w = serve(r, http.MethodGet, "/api/v1/complaints/"+resp.TrackingID+"/history", "", map[string]string{"Accept-Encoding": "gzip"})
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("history should be gzip encoded: code=%d enc=%q", w.Code, w.Header().Get("Content-Encoding"))
	}
}

func TestRegisterRoutes_RateLimitWithReplayBypass(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, _ := newRouter(t, cfg, nil)

	key := map[string]string{middleware.HeaderIdempotencyKey: "first-report"}
	if w := serve(r, http.MethodPost, "/api/v1/complaints", complaintJSON, key); w.Code != http.StatusCreated {
		t.Fatalf("first submit = %d", w.Code)
	}
	w := serve(r, http.MethodPost, "/api/v1/complaints", complaintJSON, nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second submit should be limited: code=%d", w.Code)
	}
	w = serve(r, http.MethodPost, "/api/v1/complaints", complaintJSON, key)
	if w.Code != http.StatusCreated || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay should bypass the limiter: code=%d", w.Code)
	}

	// Reads are not limited.
	if w := serve(r, http.MethodGet, "/api/v1/departments", "", nil); w.Code != http.StatusOK {
		t.Fatalf("GET /departments = %d", w.Code)
	}
}

func TestRegisterRoutes_RedisRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := baseConfig()
	cfg.RateWindowLimit = 1
	r, _ := newRouter(t, cfg, func(d *Deps) { d.Redis = rdb })

	if w := serve(r, http.MethodPost, "/api/v1/complaints", complaintJSON, nil); w.Code != http.StatusCreated {
		t.Fatalf("first submit = %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/api/v1/complaints", complaintJSON, nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit should be limited by redis window, got %d", w.Code)
	}
}

func TestRegisterRoutes_AdminGroup(t *testing.T) {
	r, d := newRouter(t, baseConfig(), nil)

	if w := serve(r, http.MethodGet, "/api/v1/admin/stats", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous stats = %d", w.Code)
	}

	hash, err := auth.HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	a, err := repo.CreateAdmin(context.Background(), d.DB, "ops", hash, "Ops", "admin")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	tok, err := d.Tokens.Issue(a.ID, a.Username, a.Role)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	w := serve(r, http.MethodGet, "/api/v1/admin/stats", "", map[string]string{"Authorization": "Bearer " + tok.AccessToken})
	if w.Code != http.StatusOK {
		t.Fatalf("admin stats = %d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("admin responses must not be cached, got %q", w.Header().Get("Cache-Control"))
	}

	w = serve(r, http.MethodPost, "/api/v1/admin/login", `{"username":"ops","password":"s3cret-pass"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d", w.Code)
	}
}

// citizenToken registers an account and signs in through the API.
func citizenToken(t *testing.T, r http.Handler, email string) string {
	t.Helper()
	body := `{"email":"` + email + `","password":"long-enough-pw","name":"Test"}`
	if w := serve(r, http.MethodPost, "/api/v1/auth/register", body, nil); w.Code != http.StatusCreated {
		t.Fatalf("register %s = %d body=%s", email, w.Code, w.Body.String())
	}
	w := serve(r, http.MethodPost, "/api/v1/auth/login", `{"email":"`+email+`","password":"long-enough-pw"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s = %d body=%s", email, w.Code, w.Body.String())
	}
	var res struct {
		Token struct {
			AccessToken string `json:"access_token"`
		} `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil || res.Token.AccessToken == "" {
		t.Fatalf("login body: %v %s", err, w.Body.String())
	}
	return res.Token.AccessToken
}

func TestRegisterRoutes_MyComplaintsNeedCitizenToken(t *testing.T) {
	r, d := newRouter(t, baseConfig(), nil)

	if w := serve(r, http.MethodGet, "/api/v1/complaints", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list = %d", w.Code)
	}
	// The old query parameter opens nothing.
	if w := serve(r, http.MethodGet, "/api/v1/complaints?contact_email=sara@example.org", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list by address = %d", w.Code)
	}

	sara := citizenToken(t, r, "sara@example.org")
	omar := citizenToken(t, r, "omar@example.org")
	asSara := map[string]string{"Authorization": "Bearer " + sara}
	asOmar := map[string]string{"Authorization": "Bearer " + omar}

	// Signed in without a contact address: the account address is used.
	if w := serve(r, http.MethodPost, "/api/v1/complaints", complaintJSON, asSara); w.Code != http.StatusCreated {
		t.Fatalf("submit as sara = %d body=%s", w.Code, w.Body.String())
	}
	anon := `{"description":"water leak","location":"Mall Road","contact_email":"sara@example.org"}`
	if w := serve(r, http.MethodPost, "/api/v1/complaints", anon, nil); w.Code != http.StatusCreated {
		t.Fatalf("anonymous submit = %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/api/v1/complaints", complaintJSON, map[string]string{"Authorization": "Bearer junk"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("submit with a bad token = %d", w.Code)
	}

	list := func(hdr map[string]string) (int, []string) {
		w := serve(r, http.MethodGet, "/api/v1/complaints", "", hdr)
		if w.Code != http.StatusOK {
			t.Fatalf("list = %d body=%s", w.Code, w.Body.String())
		}
		if w.Header().Get("Cache-Control") != "no-store" {
			t.Fatalf("my complaints must not be cached")
		}
		var lr struct {
			Complaints []struct {
				ContactEmail string `json:"contact_email"`
			} `json:"complaints"`
			Pagination struct {
				Total int64 `json:"total"`
			} `json:"pagination"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &lr); err != nil {
			t.Fatalf("json: %v", err)
		}
		emails := make([]string, 0, len(lr.Complaints))
		for _, c := range lr.Complaints {
			emails = append(emails, c.ContactEmail)
		}
		return int(lr.Pagination.Total), emails
	}
	if n, emails := list(asSara); n != 2 || emails[0] != "sara@example.org" || emails[1] != "sara@example.org" {
		t.Fatalf("sara sees %d %v", n, emails)
	}
	if n, emails := list(asOmar); n != 0 || len(emails) != 0 {
		t.Fatalf("omar must not see sara's complaints: %d %v", n, emails)
	}

	// Citizen and operator tokens do not cross over.
	if w := serve(r, http.MethodGet, "/api/v1/admin/stats", "", asSara); w.Code != http.StatusForbidden {
		t.Fatalf("citizen token on admin route = %d", w.Code)
	}
	adm, err := d.Tokens.Issue("adm-1", "ops", auth.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	if w := serve(r, http.MethodGet, "/api/v1/complaints", "", map[string]string{"Authorization": "Bearer " + adm.AccessToken}); w.Code != http.StatusForbidden {
		t.Fatalf("admin token on my complaints = %d", w.Code)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := baseConfig()
	if w := serve(mustRouter(t, cfg), http.MethodGet, "/swagger/index.html", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off by default, got %d", w.Code)
	}
	cfg.SwaggerEnabled = true
	if w := serve(mustRouter(t, cfg), http.MethodGet, "/swagger/doc.json", "", nil); w.Code != http.StatusOK {
		t.Fatalf("swagger doc = %d", w.Code)
	}
}

func mustRouter(t *testing.T, cfg config.Config) *gin.Engine {
	r, _ := newRouter(t, cfg, nil)
	return r
}

func TestHealth_DegradedWhenDatabaseDown(t *testing.T) {
	r, d := newRouter(t, baseConfig(), nil)
	sqlDB, err := d.DB.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	if w := serve(r, http.MethodGet, "/health", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with a closed database, got %d", w.Code)
	}
}

func Test_bodyCap(t *testing.T) {
	cfg := baseConfig()
	if got := bodyCap(cfg); got != 3<<20 {
		t.Fatalf("bodyCap = %d", got)
	}
	cfg.Storage.MaxUploadBytes = 0
	if got := bodyCap(cfg); got != 1<<20 {
		t.Fatalf("bodyCap without uploads = %d", got)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := serve(r, http.MethodGet, path, "", nil)
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}

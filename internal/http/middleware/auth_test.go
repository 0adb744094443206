package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/civic-complaints-backend/internal/auth"
)

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tm := auth.NewTokenManager("secret", time.Hour, "civic")
	other := auth.NewTokenManager("other-secret", time.Hour, "civic")

	r := gin.New()
	r.Use(RequestID())
	r.GET("/admin/me", RequireAdmin(tm), func(c *gin.Context) {
		id, name := AdminFrom(c)
		c.String(http.StatusOK, id+"/"+name)
	})

	call := func(h string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin/me", nil)
		if h != "" {
			req.Header.Set("Authorization", h)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	good, err := tm.Issue("adm-1", "ops", "admin")
	if err != nil {
		t.Fatal(err)
	}
	forged, _ := other.Issue("adm-1", "ops", "admin")

	if w := call("Bearer " + good.AccessToken); w.Code != http.StatusOK || w.Body.String() != "adm-1/ops" {
		t.Fatalf("valid token: %d %s", w.Code, w.Body.String())
	}
	if w := call("bearer " + good.AccessToken); w.Code != http.StatusOK {
		t.Fatalf("scheme is case-insensitive, got %d", w.Code)
	}
	for _, h := range []string{"", "Basic abc", "Bearer ", "Bearer " + forged.AccessToken, "Bearer not.a.jwt"} {
		w := call(h)
		if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), `"code":"unauthorized"`) {
			t.Fatalf("%q: %d %s", h, w.Code, w.Body.String())
		}
		if w.Header().Get("WWW-Authenticate") == "" {
			t.Fatalf("missing WWW-Authenticate")
		}
	}
}

func TestAuth_RolesDoNotCross(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tm := auth.NewTokenManager("secret", time.Hour, "civic")
	admin, _ := tm.Issue("adm-1", "ops", auth.RoleAdmin)
	citizen, _ := tm.Issue("usr-1", "sara@example.org", auth.RoleCitizen)

	r := gin.New()
	r.Use(RequestID())
	r.GET("/admin", RequireAdmin(tm), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/mine", RequireCitizen(tm), func(c *gin.Context) {
		id, email, ok := CitizenFrom(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.String(http.StatusOK, id+"/"+email)
	})
	r.POST("/file", OptionalCitizen(tm), func(c *gin.Context) {
		_, email, ok := CitizenFrom(c)
		if !ok {
			email = "anonymous"
		}
		c.String(http.StatusOK, email)
	})

	call := func(method, path, tok string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	cases := []struct {
		name, method, path, tok string
		status                  int
		body                    string
	}{
		{"citizen on admin", http.MethodGet, "/admin", citizen.AccessToken, http.StatusForbidden, `"code":"forbidden"`},
		{"admin on admin", http.MethodGet, "/admin", admin.AccessToken, http.StatusOK, ""},
		{"anonymous mine", http.MethodGet, "/mine", "", http.StatusUnauthorized, `"code":"unauthorized"`},
		{"admin on mine", http.MethodGet, "/mine", admin.AccessToken, http.StatusForbidden, `"code":"forbidden"`},
		{"citizen on mine", http.MethodGet, "/mine", citizen.AccessToken, http.StatusOK, "usr-1/sara@example.org"},
		{"anonymous filing", http.MethodPost, "/file", "", http.StatusOK, "anonymous"},
		{"citizen filing", http.MethodPost, "/file", citizen.AccessToken, http.StatusOK, "sara@example.org"},
		{"garbage token filing", http.MethodPost, "/file", "junk", http.StatusUnauthorized, ""},
		{"admin token filing", http.MethodPost, "/file", admin.AccessToken, http.StatusForbidden, ""},
	}
	for _, tc := range cases {
		w := call(tc.method, tc.path, tc.tok)
		if w.Code != tc.status || !strings.Contains(w.Body.String(), tc.body) {
			t.Fatalf("%s: %d %s", tc.name, w.Code, w.Body.String())
		}
	}
	if w := call(http.MethodGet, "/mine", ""); w.Header().Get("WWW-Authenticate") != `Bearer realm="citizen"` {
		t.Fatalf("realm = %q", w.Header().Get("WWW-Authenticate"))
	}
}

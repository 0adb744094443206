package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabelsAndInflight(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/complaints/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.POST("/complaints", func(c *gin.Context) { c.Status(http.StatusCreated) })

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/complaints/:id", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))
	baseCreated := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/complaints", "201"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/complaints/CIV-00000001", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/complaints/CIV-00000002", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/complaints", strings.NewReader(`{"text":"pothole"}`)))

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/complaints/:id", "200")); got != baseOK+2 {
		t.Fatalf("route counter = %v; want %v (tracking IDs must not become labels)", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404")); got != base404+1 {
		t.Fatalf("404 fallback counter = %v", got)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/complaints", "201")); got != baseCreated+1 {
		t.Fatalf("post counter = %v", got)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds SecurityHeaders, the response hardening shared by the
// citizen and admin APIs, and BodyLimit, which bounds evidence uploads.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CitizenPermissions lets the first-party citizen UI take photos, record
// voice notes and read the device location for a complaint.
const CitizenPermissions = "geolocation=(self), microphone=(self), camera=(self), payment=()"

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests only.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days.
	HSTSMaxAge time.Duration
	// NoStore forbids caching. The admin group sets it because its
	// responses carry citizen contact details.
	NoStore bool
	// EnablePolicy sends Permissions-Policy (CitizenPermissions unless
	// Permissions is set) and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
	Permissions  string
}

type header struct{ name, value string }

// SecurityHeaders adds the configured hardening headers to every response and
// exposes X-Request-ID to browser clients when it is present.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	fixed := []header{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		perms := opt.Permissions
		if perms == "" {
			perms = CitizenPermissions
		}
		fixed = append(fixed,
			header{"Permissions-Policy", perms},
			header{"X-Permitted-Cross-Domain-Policies", "none"})
	}
	if opt.NoStore {
		fixed = append(fixed,
			header{"Cache-Control", "no-store"},
			header{"Pragma", "no-cache"},
			header{"Expires", "0"})
	}

	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 180 * 24 * time.Hour
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, f := range fixed {
			h.Set(f.name, f.value)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers once.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	switch {
	case cur == "":
		h.Set(key, name)
	case !strings.Contains(cur, name):
		h.Set(key, cur+", "+name)
	}
}

// isHTTPS reports whether the request arrived over TLS directly or through a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// BodyLimit caps request bodies at max bytes. A declared Content-Length over
// the cap is refused with 413 up front; otherwise reads past the cap fail and
// handlers answer 413. max <= 0 disables the cap.
func BodyLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > max {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "payload_too_large",
				"message":    "request body too large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		c.Next()
	}
}

// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// RedactingLogger is the access logger. Citizens put e-mail addresses and
// phone numbers into query strings ("my complaints" lookups) and headers, so
// every value is scrubbed before it reaches a log line. Bodies are never
// logged.
//
// The middleware also builds the request-scoped zerolog.Logger and attaches
// it both to the Gin context (LoggerFrom) and to the request's
// context.Context, so services can log with zerolog.Ctx(ctx).
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrubbing.
//
// MaskHeaders lists extra header names whose values are replaced with
// "[REDACTED]"; Authorization, Cookie and Set-Cookie are always masked.
// MaskQuery lists extra query parameters masked the same way; contact_email,
// contact_phone, email, phone, password and token are always masked.
// LogHeaders adds the scrubbed request headers to the access line.
type RedactOptions struct {
	MaskHeaders []string
	MaskQuery   []string
	LogHeaders  bool
}

var (
	// UUIDs go first so the phone pattern cannot eat their digit groups.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, e.g. "+92 300 1234567", "0300-1234567", "(042) 555-1212".
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
	// Tracking IDs look like phone numbers to phoneRE; they are public
	// handles and are protected from redaction.
	trackingRE = regexp.MustCompile(`\b[A-Z]{2,8}-\d{6,12}\b`)
)

// Redact scrubs e-mail addresses, phone numbers and UUIDs from s. Complaint
// tracking IDs are left intact.
func Redact(s string) string {
	if s == "" {
		return s
	}
	var kept []string
	out := trackingRE.ReplaceAllStringFunc(s, func(m string) string {
		kept = append(kept, m)
		return "\x00"
	})
	out = uuidRE.ReplaceAllString(out, "[REDACTED:id]")
	out = emailRE.ReplaceAllString(out, "[REDACTED:email]")
	out = phoneRE.ReplaceAllString(out, "[REDACTED:phone]")
	for _, m := range kept {
		out = strings.Replace(out, "\x00", m, 1)
	}
	return out
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, v := range list {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				set[v] = struct{}{}
			}
		}
	}
	return set
}

// redactQuery masks sensitive parameters outright and scrubs the rest.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return Redact(raw)
	}
	for k, vs := range vals {
		_, masked := mask[strings.ToLower(k)]
		for i := range vs {
			if masked {
				vs[i] = "[REDACTED]"
			} else {
				vs[i] = Redact(vs[i])
			}
		}
	}
	// Encode escapes the brackets; keep them readable.
	out, _ := url.QueryUnescape(vals.Encode())
	return out
}

// RedactingLogger returns the access-log middleware.
//
// Level by outcome: error for 5xx or when handlers attached gin errors, warn
// for 4xx, info otherwise. Place it after RequestID.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders)
	maskQuery := lowerSet([]string{"contact_email", "contact_phone", "email", "phone", "password", "token"}, opts.MaskQuery)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		l := log.With().
			Str("request_id", asString(c.Value(requestIDKey))).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Logger()
		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		var headers map[string]string
		if opts.LogHeaders {
			headers = make(map[string]string, len(c.Request.Header))
			for k, vv := range c.Request.Header {
				if _, ok := maskHeaders[strings.ToLower(k)]; ok {
					headers[k] = "[REDACTED]"
					continue
				}
				headers[k] = Redact(strings.Join(vv, ", "))
			}
		}

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", Redact(c.Errors.String()))
		}
		if id := c.GetString(adminIDKey); id != "" {
			ev = ev.Str("admin_id", id)
		}
		if headers != nil {
			ev = ev.Interface("headers", headers)
		}
		ev.
			Str("query", truncate(redactQuery(c.Request.URL.RawQuery, maskQuery), maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", status).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg("http_request")
	}
}

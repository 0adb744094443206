// Package notify delivers best-effort e-mail and SMS messages to citizens
// when a complaint is filed or changes status. Delivery never affects the
// committed state of a complaint; every attempt is recorded in the
// notifications log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrNoTransport is returned by an empty Chain.
var ErrNoTransport = errors.New("notify: no email transport configured")

// EmailSender delivers one HTML e-mail.
type EmailSender interface {
	Name() string
	SendEmail(ctx context.Context, to, subject, html string) error
}

// SMSSender delivers one text message.
type SMSSender interface {
	Name() string
	SendSMS(ctx context.Context, to, text string) error
}

// Chain tries each sender in order and stops at the first success.
type Chain []EmailSender

func (c Chain) Name() string {
	names := make([]string, 0, len(c))
	for _, s := range c {
		names = append(names, s.Name())
	}
	return strings.Join(names, ">")
}

func (c Chain) SendEmail(ctx context.Context, to, subject, html string) error {
	if len(c) == 0 {
		return ErrNoTransport
	}
	var errs []error
	for _, s := range c {
		err := s.SendEmail(ctx, to, subject, html)
		if err == nil {
			return nil
		}
		zerolog.Ctx(ctx).Warn().Err(err).Str("transport", s.Name()).Msg("email transport failed")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return errors.Join(errs...)
}

// SendGridURL is the production API base.
const SendGridURL = "https://api.sendgrid.com"

// SendGrid sends mail through the SendGrid v3 HTTP API.
type SendGrid struct {
	http *resty.Client
	from string
}

// NewSendGrid returns nil when apiKey or from is empty.
func NewSendGrid(baseURL, apiKey, from string, timeout time.Duration) *SendGrid {
	from = strings.ToLower(strings.TrimSpace(from))
	if strings.TrimSpace(apiKey) == "" || from == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = SendGridURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(strings.TrimSpace(apiKey)).
		SetHeader("Content-Type", "application/json")
	return &SendGrid{http: hc, from: from}
}

func (s *SendGrid) Name() string { return "sendgrid" }

type sgAddress struct {
	Email string `json:"email"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgMail struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

func (s *SendGrid) SendEmail(ctx context.Context, to, subject, html string) error {
	body := sgMail{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: strings.ToLower(strings.TrimSpace(to))}}}},
		From:             sgAddress{Email: s.from},
		Subject:          subject,
		Content:          []sgContent{{Type: "text/html", Value: html}},
	}
	resp, err := s.http.R().SetContext(ctx).SetBody(body).Post("/v3/mail/send")
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if sc := resp.StatusCode(); sc != 200 && sc != 202 {
		return fmt.Errorf("sendgrid: status %d: %s", sc, strings.TrimSpace(resp.String()))
	}
	return nil
}

// SMTP sends mail through an SMTP relay with STARTTLS and PLAIN auth.
type SMTP struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP returns nil when host, from or password is missing.
func NewSMTP(host string, port int, username, password, from string) *SMTP {
	from = strings.TrimSpace(from)
	if host == "" || from == "" || password == "" {
		return nil
	}
	if port == 0 {
		port = 587
	}
	if username == "" {
		username = from
	}
	return &SMTP{Host: host, Port: port, Username: username, Password: password, From: from, send: smtp.SendMail}
}

func (s *SMTP) Name() string { return "smtp" }

func (s *SMTP) SendEmail(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildMIME(s.From, to, subject, html)
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	if err := s.send(addr, auth, s.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}

func buildMIME(from, to, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// LogSMS simulates an SMS gateway by logging the message.
type LogSMS struct{}

func (LogSMS) Name() string { return "log" }

func (LogSMS) SendSMS(ctx context.Context, to, text string) error {
	zerolog.Ctx(ctx).Info().Str("to", to).Str("text", text).Msg("sms (simulated)")
	return nil
}

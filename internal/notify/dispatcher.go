package notify

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/observability"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
)

// Channel and kind values written to the notifications log.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	KindCreated = "created"
	KindStatus  = "status"
)

// Dispatcher fans a complaint event out to e-mail and SMS.
type Dispatcher struct {
	DB      *gorm.DB
	Email   EmailSender
	SMS     SMSSender
	Timeout time.Duration

	wg sync.WaitGroup
}

// NewDispatcher wires senders. A nil sender turns its channel into "skipped".
func NewDispatcher(db *gorm.DB, email EmailSender, sms SMSSender, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{DB: db, Email: email, SMS: sms, Timeout: timeout}
}

// Go runs fn detached from the caller's cancellation, bounded by Timeout.
// Wait blocks until every detached run has finished.
func (d *Dispatcher) Go(ctx context.Context, fn func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.Timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until all work started with Go has completed.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// ComplaintCreated sends the submission confirmation.
func (d *Dispatcher) ComplaintCreated(ctx context.Context, c *domain.Complaint) {
	ctx, span := otel.Tracer("notify/Dispatcher").Start(ctx, "ComplaintCreated",
		trace.WithAttributes(attribute.String("tracking_id", c.TrackingID)))
	defer span.End()

	html, err := createdHTML(c)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("render confirmation email")
	}
	d.dispatch(ctx, c, KindCreated, CreatedSubject(c.TrackingID), html, CreatedSMS(c.TrackingID))
}

// StatusChanged tells the citizen about a committed transition.
func (d *Dispatcher) StatusChanged(ctx context.Context, c *domain.Complaint, previous domain.Status, notes string) {
	ctx, span := otel.Tracer("notify/Dispatcher").Start(ctx, "StatusChanged",
		trace.WithAttributes(
			attribute.String("tracking_id", c.TrackingID),
			attribute.String("status", string(c.Status)),
		))
	defer span.End()

	html, err := statusHTML(c, previous, notes)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("render status email")
	}
	d.dispatch(ctx, c, KindStatus, StatusSubject(c.TrackingID), html, StatusSMS(c.TrackingID, c.Status))
}

type outcome struct {
	channel, to, message string
	err                  error
	skipped              bool
}

// dispatch sends both channels concurrently; neither outcome affects the
// other. Log rows are written once both attempts have finished.
func (d *Dispatcher) dispatch(ctx context.Context, c *domain.Complaint, kind, subject, html, sms string) {
	email := outcome{channel: ChannelEmail, to: strings.TrimSpace(c.ContactEmail), message: subject}
	text := outcome{channel: ChannelSMS, to: strings.TrimSpace(c.ContactPhone), message: sms}

	var g errgroup.Group
	g.Go(func() error {
		switch {
		case email.to == "" || html == "":
			email.skipped = true
		case d.Email == nil:
			email.err = ErrNoTransport
		default:
			email.err = d.Email.SendEmail(ctx, email.to, subject, html)
		}
		return nil
	})
	g.Go(func() error {
		if text.to == "" || d.SMS == nil {
			text.skipped = true
			return nil
		}
		text.err = d.SMS.SendSMS(ctx, text.to, sms)
		return nil
	})
	_ = g.Wait()

	d.record(ctx, c.TrackingID, kind, email)
	d.record(ctx, c.TrackingID, kind, text)
}

func (d *Dispatcher) record(ctx context.Context, trackingID, kind string, o outcome) {
	row := &domain.NotificationLog{
		TrackingID: trackingID,
		Channel:    o.channel,
		Kind:       kind,
		Recipient:  o.to,
		Message:    o.message,
		Status:     domain.NotificationSent,
	}
	switch {
	case o.skipped:
		row.Status = domain.NotificationSkipped
	case o.err != nil:
		row.Status = domain.NotificationFailed
		row.Error = o.err.Error()
		zerolog.Ctx(ctx).Warn().Err(o.err).Str("tracking_id", trackingID).Str("channel", o.channel).Msg("notification failed")
	}
	observability.Notifications.WithLabelValues(o.channel, row.Status).Inc()

	if d.DB == nil {
		return
	}
	if err := repo.LogNotification(ctx, d.DB, row); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("tracking_id", trackingID).Msg("write notification log")
	}
}

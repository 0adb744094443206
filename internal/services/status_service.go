// Package services – StatusService
//
// StatusService is the complaint state machine. A transition is validated
// against the status enum and the directed graph in domain, then the
// complaint row and its history entry are written in one transaction.
// Citizen notifications follow the commit and can never roll it back.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/observability"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
)

// Actor identifies who performed a transition.
type Actor struct {
	ID       string
	Username string
}

// StatusService applies admin-triggered status transitions.
type StatusService struct {
	DB       *gorm.DB
	Notifier Notifier
	Detach   func(ctx context.Context, fn func(ctx context.Context))
	Now      func() time.Time
}

// UpdateStatus moves a complaint to status. Errors:
//   - ErrInvalidStatus when status is not an enum member;
//   - ErrComplaintNotFound when trackingID does not exist;
//   - ErrInvalidTransition when the graph has no such edge (including a
//     transition to the current status or out of a terminal one).
//
// In every error case nothing is written.
func (s *StatusService) UpdateStatus(ctx context.Context, actor Actor, trackingID, status, notes string) (*domain.Complaint, error) {
	ctx, span := otel.Tracer("services/StatusService").Start(ctx, "UpdateStatus",
		trace.WithAttributes(
			attribute.String("complaint.tracking_id", trackingID),
			attribute.String("status.to", status),
			attribute.String("actor.id", actor.ID),
		))
	defer span.End()

	to, ok := domain.ParseStatus(strings.TrimSpace(status))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	notes = strings.TrimSpace(notes)
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	var updated *domain.Complaint
	var from domain.Status
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.GetComplaint(ctx, tx, trackingID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrComplaintNotFound
			}
			return err
		}
		from = c.Status
		if !from.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		if err := repo.UpdateStatus(ctx, tx, trackingID, to, notes, now); err != nil {
			return err
		}
		if _, err := repo.AppendHistory(ctx, tx, trackingID, to, from, notes, actor.Username, now); err != nil {
			return err
		}
		if actor.ID != "" {
			desc := fmt.Sprintf("%s -> %s", from, to)
			if err := repo.LogAdminActivity(ctx, tx, actor.ID, "status_update", trackingID, desc); err != nil {
				return err
			}
		}
		c.Status, c.UpdatedAt = to, now
		if notes != "" {
			c.AdminNotes = notes
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
	zerolog.Ctx(ctx).Info().
		Str("tracking_id", trackingID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", actor.Username).
		Msg("status updated")

	if s.Notifier != nil {
		snapshot := *updated
		run := func(ctx context.Context) { s.Notifier.StatusChanged(ctx, &snapshot, from, notes) }
		if s.Detach != nil {
			s.Detach(ctx, run)
		} else {
			run(ctx)
		}
	}
	return updated, nil
}

// NextStatuses lists the statuses reachable from the complaint's current one.
func (s *StatusService) NextStatuses(ctx context.Context, trackingID string) ([]domain.Status, error) {
	c, err := repo.GetComplaint(ctx, s.DB, trackingID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrComplaintNotFound
	}
	if err != nil {
		return nil, err
	}
	return c.Status.NextStatuses(), nil
}

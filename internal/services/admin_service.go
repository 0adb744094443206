// Package services – AdminService
//
// AdminService authenticates operators (bcrypt password hashes, JWT access
// tokens), provisions the bootstrap account and exposes the audit trail.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/auth"
	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
	"github.com/tbourn/civic-complaints-backend/internal/utils"
)

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token *auth.Token       `json:"token"`
	Admin *domain.AdminUser `json:"admin"`
}

// AdminService manages operator accounts.
type AdminService struct {
	DB     *gorm.DB
	Tokens *auth.TokenManager
}

// Login checks credentials and issues an access token. Unknown usernames
// and wrong passwords both return ErrInvalidCredentials.
func (s *AdminService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	ctx, span := otel.Tracer("services/AdminService").Start(ctx, "Login",
		trace.WithAttributes(attribute.String("admin.username", username)))
	defer span.End()

	a, err := repo.GetAdminByUsername(ctx, s.DB, username)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(a.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	tok, err := s.Tokens.Issue(a.ID, a.Username, a.Role)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := repo.TouchAdminLogin(ctx, s.DB, a.ID, now); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("admin_id", a.ID).Msg("stamp last login")
	} else {
		a.LastLogin = &now
	}
	if err := repo.LogAdminActivity(ctx, s.DB, a.ID, "login", "", "signed in"); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("audit login")
	}
	return &LoginResult{Token: tok, Admin: a}, nil
}

// EnsureBootstrapAdmin creates the first operator when no account exists.
// It reports whether an account was created.
func (s *AdminService) EnsureBootstrapAdmin(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, nil
	}
	n, err := repo.CountAdmins(ctx, s.DB)
	if err != nil || n > 0 {
		return false, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	if _, err := repo.CreateAdmin(ctx, s.DB, username, hash, "Administrator", auth.RoleAdmin); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Activity returns the newest audit rows first.
func (s *AdminService) Activity(ctx context.Context, limit int) ([]domain.AdminActivity, error) {
	if limit <= 0 {
		limit = 100
	}
	return repo.ListAdminActivity(ctx, s.DB, utils.Clamp(limit, 1, 500))
}

// Notifications returns the delivery log of one complaint.
func (s *AdminService) Notifications(ctx context.Context, trackingID string) ([]domain.NotificationLog, error) {
	if _, err := repo.GetComplaint(ctx, s.DB, trackingID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrComplaintNotFound
		}
		return nil, err
	}
	return repo.ListNotifications(ctx, s.DB, trackingID)
}

// Record appends an audit row; failures are logged.
func (s *AdminService) Record(ctx context.Context, adminID, action, trackingID, description string) {
	if err := repo.LogAdminActivity(ctx, s.DB, adminID, action, trackingID, description); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("action", action).Msg("audit")
	}
}

// Package services – CitizenService
//
// CitizenService manages citizen accounts. A signed-in citizen sees the
// complaints filed with the account's e-mail as contact address; nobody else
// can list them.
package services

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/auth"
	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
)

// MinPasswordLen is the shortest accepted citizen password, in runes.
const MinPasswordLen = 8

// Registration is a new citizen account.
type Registration struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

// CitizenLoginResult is returned on successful citizen sign-in.
type CitizenLoginResult struct {
	Token *auth.Token  `json:"token"`
	User  *domain.User `json:"user"`
}

// CitizenService registers and authenticates citizens.
type CitizenService struct {
	DB     *gorm.DB
	Tokens *auth.TokenManager
}

// Register creates an account. The e-mail is stored lowercased.
func (s *CitizenService) Register(ctx context.Context, r Registration) (*domain.User, error) {
	ctx, span := otel.Tracer("services/CitizenService").Start(ctx, "Register")
	defer span.End()

	email, err := normalizeEmail(r.Email)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(r.Password) < MinPasswordLen {
		return nil, ErrWeakPassword
	}
	hash, err := auth.HashPassword(r.Password)
	if err != nil {
		return nil, err
	}
	u, err := repo.CreateUser(ctx, s.DB, email, hash, r.Name, r.Phone)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	return u, err
}

// Login checks credentials and issues a citizen access token. Unknown
// addresses and wrong passwords both return ErrInvalidCredentials.
func (s *CitizenService) Login(ctx context.Context, email, password string) (*CitizenLoginResult, error) {
	ctx, span := otel.Tracer("services/CitizenService").Start(ctx, "Login")
	defer span.End()

	addr, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	u, err := repo.GetUserByEmail(ctx, s.DB, addr)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	tok, err := s.Tokens.Issue(u.ID, u.Email, auth.RoleCitizen)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := repo.TouchUserLogin(ctx, s.DB, u.ID, now); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", u.ID).Msg("stamp last login")
	} else {
		u.LastLogin = &now
	}
	return &CitizenLoginResult{Token: tok, User: u}, nil
}

// Complaints lists the account's complaints, newest first. The address is
// read from the account row, so a token cannot widen what it sees.
func (s *CitizenService) Complaints(ctx context.Context, userID string, page, pageSize int) ([]domain.Complaint, int64, error) {
	ctx, span := otel.Tracer("services/CitizenService").Start(ctx, "Complaints")
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, 0, ErrAccountGone
	}
	if err != nil {
		return nil, 0, err
	}
	return pageComplaints(ctx, s.DB, repo.ComplaintFilter{ContactEmail: u.Email}, page, pageSize)
}

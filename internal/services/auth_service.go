package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/fitcoach/internal/models"
	pgrepo "github.com/yoockh/fitcoach/internal/repositories/postgres"
	"github.com/yoockh/fitcoach/internal/utils"
)

// TokenIssuer signs access tokens for a user.
type TokenIssuer interface {
	Issue(u *models.User) (string, error)
}

type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type AuthService interface {
	Signup(ctx context.Context, email, password string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	Me(ctx context.Context, userID string) (*models.User, error)
}

type authService struct {
	users  pgrepo.UserRepository
	tokens TokenIssuer
	log    logrus.FieldLogger
}

func NewAuthService(users pgrepo.UserRepository, tokens TokenIssuer, log logrus.FieldLogger) AuthService {
	return &authService{users: users, tokens: tokens, log: log}
}

func (s *authService) Signup(ctx context.Context, email, password string) (*AuthResult, error) {
	const op = "AuthService.Signup"

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "email and password are required", nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "email is not valid", err)
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, err.Error(), err)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to hash password", err)
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "email already exists", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to create user", err)
	}

	s.log.WithField("user_id", u.ID).Info("user signed up")
	return s.issue(op, u)
}

func (s *authService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	const op = "AuthService.Login"

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "email and password are required", nil)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeUnauthorized, op, "invalid credentials", nil)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get user", err)
	}
	ok, err := utils.CheckPassword(u.PasswordHash, password)
	if err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("stored password hash is unreadable")
	}
	if !ok {
		return nil, utils.E(utils.CodeUnauthorized, op, "invalid credentials", nil)
	}
	return s.issue(op, u)
}

func (s *authService) Me(ctx context.Context, userID string) (*models.User, error) {
	const op = "AuthService.Me"

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "user not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get user", err)
	}
	return u, nil
}

func (s *authService) issue(op string, u *models.User) (*AuthResult, error) {
	tok, err := s.tokens.Issue(u)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to issue token", err)
	}
	return &AuthResult{Token: tok, User: u}, nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

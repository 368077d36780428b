package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/epiwatch/epiwatch-api/internal/metrics"
	"github.com/epiwatch/epiwatch-api/internal/repository"
)

// Auth service errors
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
	ErrWrongCountry       = errors.New("user does not belong to this instance's country")
	ErrRoleNotAllowed     = errors.New("role not in the country's vocabulary")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrAdminProtected     = errors.New("admin accounts cannot be deleted")
)

// Error codes for API responses
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidSession     = "INVALID_SESSION"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeAdminRequired      = "ADMIN_REQUIRED"
	CodeWrongCountry       = "WRONG_COUNTRY"
	CodeUsernameTaken      = "USERNAME_TAKEN"
	CodeUserNotFound       = "USER_NOT_FOUND"
)

// Brute force protection constants
const (
	MaxFailedAttempts   = 5
	FailedAttemptWindow = 15 * time.Minute
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required"`
}

// CreateUserRequest represents the admin create-user request payload
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	FullName string `json:"full_name" validate:"omitempty,max=128"`
}

// UserResponse represents the user data in responses
type UserResponse struct {
	ID        string             `json:"id"`
	Username  string             `json:"username"`
	Country   repository.Country `json:"country"`
	Role      string             `json:"role"`
	Email     *string            `json:"email,omitempty"`
	FullName  *string            `json:"full_name,omitempty"`
	IsActive  bool               `json:"is_active"`
	CreatedAt time.Time          `json:"created_at"`
	LastLogin *time.Time         `json:"last_login,omitempty"`
}

// LoginResponse represents the authentication response. The session
// token is the credential of record; the access token is a signed
// snapshot for clients that prefer stateless verification.
type LoginResponse struct {
	User         UserResponse `json:"user"`
	SessionToken string       `json:"session_token"`
	AccessToken  string       `json:"access_token"`
	ExpiresIn    int64        `json:"expires_in"`
}

func newUserResponse(u *repository.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		Country:   u.Country,
		Role:      u.Role,
		Email:     u.Email,
		FullName:  u.FullName,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		LastLogin: u.LastLogin,
	}
}

// AuthService handles authentication business logic. Each deployment
// serves a single country; logins and user management are scoped to it.
type AuthService struct {
	users      repository.UserRepository
	sessions   repository.SessionRepository
	manager    *SessionManager
	tokens     *TokenService
	passwords  *PasswordService
	country    repository.Country
	sessionTTL time.Duration
	logger     *slog.Logger
}

// AuthServiceConfig holds the AuthService dependencies
type AuthServiceConfig struct {
	Users      repository.UserRepository
	Sessions   repository.SessionRepository
	Manager    *SessionManager
	Tokens     *TokenService
	Passwords  *PasswordService
	Country    repository.Country
	SessionTTL time.Duration
	Logger     *slog.Logger
}

// NewAuthService creates a new AuthService instance
func NewAuthService(cfg AuthServiceConfig) *AuthService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:      cfg.Users,
		sessions:   cfg.Sessions,
		manager:    cfg.Manager,
		tokens:     cfg.Tokens,
		passwords:  cfg.Passwords,
		country:    cfg.Country,
		sessionTTL: cfg.SessionTTL,
		logger:     logger,
	}
}

// Country returns the country this instance serves
func (s *AuthService) Country() repository.Country {
	return s.country
}

// Login authenticates a user against the instance country and issues a
// session. Missing user, wrong password and inactive account all
// collapse into ErrInvalidCredentials so nothing about the account
// leaks to the caller.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, meta SessionMetadata) (*LoginResponse, error) {
	since := time.Now().UTC().Add(-FailedAttemptWindow)
	failed, err := s.sessions.CountFailedAttempts(ctx, req.Username, since)
	if err != nil {
		return nil, err
	}
	if failed >= MaxFailedAttempts {
		metrics.LoginFailures.Inc()
		return nil, ErrTooManyAttempts
	}

	user, err := s.users.GetByUsername(ctx, req.Username, s.country)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_ = s.sessions.RecordFailedAttempt(ctx, req.Username, meta.IPAddress)
			metrics.LoginFailures.Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.passwords.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		_ = s.sessions.RecordFailedAttempt(ctx, req.Username, meta.IPAddress)
		metrics.LoginFailures.Inc()
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		s.logger.Warn("login refused for deactivated account", "username", user.Username)
		metrics.LoginFailures.Inc()
		return nil, ErrInvalidCredentials
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}

	sessionToken, err := s.manager.Issue(ctx, user.ID, s.sessionTTL, meta)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		// The session row exists but the client never sees its token;
		// revoke rather than leave it to expire.
		_ = s.manager.Revoke(ctx, sessionToken)
		return nil, err
	}

	user, err = s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "username", user.Username, "country", user.Country, "role", user.Role)

	return &LoginResponse{
		User:         newUserResponse(user),
		SessionToken: sessionToken,
		AccessToken:  accessToken,
		ExpiresIn:    int64(s.sessionTTL.Seconds()),
	}, nil
}

// Logout revokes the presented session token. Idempotent.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.manager.Revoke(ctx, token)
}

// ListUsers returns the users of the admin's country, optionally
// filtered by role.
func (s *AuthService) ListUsers(ctx context.Context, role string) ([]UserResponse, error) {
	users, err := s.users.ListByCountry(ctx, s.country, role)
	if err != nil {
		return nil, err
	}

	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, newUserResponse(u))
	}
	return out, nil
}

// CreateUser provisions an account in the admin's country. The role
// must belong to the country's vocabulary (admin_<cc> or chercheur_<cc>).
func (s *AuthService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, []PasswordValidationError, error) {
	if pwErrs := s.passwords.ValidatePassword(req.Password); len(pwErrs) > 0 {
		return nil, pwErrs, nil
	}

	allowed := false
	for _, role := range s.country.Roles() {
		if req.Role == role {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, nil, ErrRoleNotAllowed
	}

	hash, err := s.passwords.HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}

	user := &repository.User{
		Username:     req.Username,
		PasswordHash: hash,
		Country:      s.country,
		Role:         req.Role,
		IsActive:     true,
	}
	if req.Email != "" {
		user.Email = &req.Email
	}
	if req.FullName != "" {
		user.FullName = &req.FullName
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return nil, nil, ErrUsernameTaken
		}
		return nil, nil, err
	}

	s.logger.Info("user created", "username", user.Username, "role", user.Role, "country", user.Country)

	resp := newUserResponse(user)
	return &resp, nil, nil
}

// DeleteUser removes an account. Admins may only delete users of their
// own country, and admin accounts are protected. Sessions cascade in
// the database.
func (s *AuthService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if user.Country != s.country {
		return ErrWrongCountry
	}
	if user.IsAdmin() {
		return ErrAdminProtected
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	s.logger.Info("user deleted", "username", user.Username, "country", user.Country)
	return nil
}

// DeactivateUser flags an account inactive and revokes its live
// sessions. The rows would be refused by Validate anyway; revoking
// keeps the sessions table honest without waiting for the reaper.
func (s *AuthService) DeactivateUser(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if user.Country != s.country {
		return ErrWrongCountry
	}

	if err := s.users.Deactivate(ctx, userID); err != nil {
		return err
	}

	revoked, err := s.manager.RevokeAllForUser(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to revoke sessions for deactivated user", "user_id", userID, "error", err)
	}

	s.logger.Info("user deactivated", "username", user.Username, "sessions_revoked", revoked)
	return nil
}

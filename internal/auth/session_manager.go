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

// Session manager errors. NotFound, Expired and Inactive are all
// reported to clients as the same uniform authentication failure; the
// distinction exists for logs and metrics only.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserInactive    = errors.New("user is deactivated")
)

// issueRetries bounds collision retries on the session token unique
// index. One retry is already paranoia given the token space.
const issueRetries = 3

// SessionMetadata carries informational attributes recorded with a
// session. None of it participates in validation.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// SessionManager mediates between authentication events and ephemeral
// session state: it issues, validates and revokes opaque session tokens.
type SessionManager struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	logger   *slog.Logger

	// now is the clock used for expiry arithmetic; replaced in tests
	now func() time.Time
	// generate produces token values; replaced in tests to force collisions
	generate func() (string, error)
}

// NewSessionManager creates a new SessionManager instance
func NewSessionManager(sessions repository.SessionRepository, users repository.UserRepository, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		sessions: sessions,
		users:    users,
		logger:   logger,
		now:      time.Now,
		generate: GenerateSessionToken,
	}
}

// Issue creates a session for an existing, active user and returns the
// opaque token. expires_at is fixed at issuance (now + ttl); there is
// no sliding expiration. On a token unique-constraint collision the
// insert is retried with a freshly generated token.
func (m *SessionManager) Issue(ctx context.Context, userID uuid.UUID, ttl time.Duration, meta SessionMetadata) (string, error) {
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	if !user.IsActive {
		return "", ErrUserInactive
	}

	expiresAt := m.now().UTC().Add(ttl)

	var lastErr error
	for attempt := 0; attempt < issueRetries; attempt++ {
		token, err := m.generate()
		if err != nil {
			return "", err
		}

		session := &repository.Session{
			Token:     token,
			UserID:    user.ID,
			ExpiresAt: expiresAt,
		}
		if meta.IPAddress != "" {
			session.IPAddress = &meta.IPAddress
		}
		if meta.UserAgent != "" {
			session.UserAgent = &meta.UserAgent
		}

		err = m.sessions.Create(ctx, session)
		if err == nil {
			metrics.SessionsIssued.Inc()
			return token, nil
		}
		if !errors.Is(err, repository.ErrTokenConflict) {
			return "", err
		}

		lastErr = err
		m.logger.Warn("session token collision, retrying with a fresh token",
			"user_id", userID, "attempt", attempt+1)
	}

	return "", lastErr
}

// Validate resolves a token to its owning user. A session is valid iff
// the row exists, the current time is strictly before expires_at, and
// the owner is still active. The read has no side effects: expired rows
// are left for the reaper and expiry is never extended.
func (m *SessionManager) Validate(ctx context.Context, token string) (*repository.User, error) {
	session, user, err := m.sessions.GetByTokenWithUser(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			metrics.SessionValidations.WithLabelValues("not_found").Inc()
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if session.ExpiredAt(m.now().UTC()) {
		metrics.SessionValidations.WithLabelValues("expired").Inc()
		return nil, ErrSessionExpired
	}

	// Deactivating an account invalidates its sessions immediately,
	// even though the rows still exist until the reaper runs.
	if !user.IsActive {
		metrics.SessionValidations.WithLabelValues("inactive").Inc()
		return nil, ErrUserInactive
	}

	metrics.SessionValidations.WithLabelValues("valid").Inc()
	return user, nil
}

// Revoke deletes the session unconditionally. Revoking a token that
// does not exist is a no-op, not an error.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	deleted, err := m.sessions.DeleteByToken(ctx, token)
	if err != nil {
		return err
	}
	if deleted {
		metrics.SessionsRevoked.Inc()
	}
	return nil
}

// RevokeAllForUser deletes every session owned by a user, e.g. when an
// admin removes the account.
func (m *SessionManager) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return m.sessions.DeleteByUserID(ctx, userID)
}

package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session repository errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTokenConflict   = errors.New("session token already exists")
)

// SessionRepository defines the interface for session data access
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	GetByToken(ctx context.Context, token string) (*Session, error)
	GetByTokenWithUser(ctx context.Context, token string) (*Session, *User, error)
	DeleteByToken(ctx context.Context, token string) (bool, error)
	DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	CountFailedAttempts(ctx context.Context, username string, since time.Time) (int, error)
	RecordFailedAttempt(ctx context.Context, username string, ip string) error
	DeleteOldFailedAttempts(ctx context.Context, before time.Time) (int64, error)
}

// sessionRepository implements SessionRepository using PostgreSQL
type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository instance
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

// Create inserts a new session. The token column carries a unique index
// as the last-resort guard against generator collisions; a violation is
// reported as ErrTokenConflict so the caller can retry with a fresh token.
func (r *sessionRepository) Create(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (token, user_id, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		session.Token,
		session.UserID,
		session.ExpiresAt,
		session.IPAddress,
		session.UserAgent,
	).Scan(&session.ID, &session.CreatedAt)

	if err != nil {
		if strings.Contains(err.Error(), "sessions_token_key") {
			return ErrTokenConflict
		}
		return err
	}

	return nil
}

// GetByToken retrieves a session by its token value. Expiry is not
// evaluated here; callers decide what an expired row means.
func (r *sessionRepository) GetByToken(ctx context.Context, token string) (*Session, error) {
	query := `
		SELECT id, token, user_id, expires_at, created_at, ip_address, user_agent
		FROM sessions
		WHERE token = $1
	`

	session := &Session{}
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&session.ID,
		&session.Token,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.IPAddress,
		&session.UserAgent,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return session, nil
}

// GetByTokenWithUser retrieves a session and its owning user in one
// round trip. Used by Validate, which needs the owner's is_active flag.
func (r *sessionRepository) GetByTokenWithUser(ctx context.Context, token string) (*Session, *User, error) {
	query := `
		SELECT s.id, s.token, s.user_id, s.expires_at, s.created_at, s.ip_address, s.user_agent,
		       u.id, u.username, u.password_hash, u.country, u.role, u.email, u.full_name,
		       u.is_active, u.created_at, u.last_login
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1
	`

	session := &Session{}
	user := &User{}
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&session.ID,
		&session.Token,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.IPAddress,
		&session.UserAgent,
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Country,
		&user.Role,
		&user.Email,
		&user.FullName,
		&user.IsActive,
		&user.CreatedAt,
		&user.LastLogin,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}

	return session, user, nil
}

// DeleteByToken removes a session by token. Returns whether a row was
// actually removed; deleting an absent token is not an error.
func (r *sessionRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	query := `DELETE FROM sessions WHERE token = $1`

	result, err := r.pool.Exec(ctx, query, token)
	if err != nil {
		return false, err
	}

	return result.RowsAffected() > 0, nil
}

// DeleteByUserID removes every session owned by a user
func (r *sessionRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `DELETE FROM sessions WHERE user_id = $1`

	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}

// DeleteExpired removes every session whose expires_at is at or before
// the given instant and returns the number of rows removed. One bulk
// delete keyed on the expiry predicate; safe to run concurrently with
// issue/validate/revoke traffic.
func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= $1`

	result, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}

// CountFailedAttempts counts failed login attempts for a username since a given time
func (r *sessionRepository) CountFailedAttempts(ctx context.Context, username string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM failed_login_attempts
		WHERE username = $1 AND attempted_at >= $2
	`

	var count int
	err := r.pool.QueryRow(ctx, query, username, since).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// RecordFailedAttempt records a failed login attempt
func (r *sessionRepository) RecordFailedAttempt(ctx context.Context, username string, ip string) error {
	query := `
		INSERT INTO failed_login_attempts (username, ip_address)
		VALUES ($1, $2)
	`

	_, err := r.pool.Exec(ctx, query, username, ip)
	return err
}

// DeleteOldFailedAttempts removes failed login attempts older than the specified time
func (r *sessionRepository) DeleteOldFailedAttempts(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM failed_login_attempts WHERE attempted_at < $1`

	result, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected(), nil
}

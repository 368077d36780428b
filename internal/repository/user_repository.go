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

// User repository errors
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUsernameTaken       = errors.New("username already exists")
	ErrCountryNotSupported = errors.New("country not in the supported set")
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string, country Country) (*User, error)
	ListByCountry(ctx context.Context, country Country, role string) ([]*User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// userRepository implements UserRepository using PostgreSQL
type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, username, password_hash, country, role, email, full_name, is_active, created_at, last_login`

// Create inserts a new user. The country enum is validated here before the
// database check constraint gets a say; usernames are case-sensitive and
// unique across all countries.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	if !user.Country.Valid() {
		return ErrCountryNotSupported
	}

	query := `
		INSERT INTO users (username, password_hash, country, role, email, full_name, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		user.Username,
		user.PasswordHash,
		user.Country,
		user.Role,
		user.Email,
		user.FullName,
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		if strings.Contains(err.Error(), "users_username_key") {
			return ErrUsernameTaken
		}
		return err
	}

	return nil
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetByUsername retrieves a user by exact username within a country.
// Each API instance serves a single country, so lookups are scoped the
// same way logins are.
func (r *userRepository) GetByUsername(ctx context.Context, username string, country Country) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 AND country = $2`
	return r.scanUser(r.pool.QueryRow(ctx, query, username, country))
}

// ListByCountry returns the users of a country ordered by role then
// creation time. An empty role matches everyone.
func (r *userRepository) ListByCountry(ctx context.Context, country Country, role string) ([]*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE country = $1 AND ($2 = '' OR role = $2)
		ORDER BY role, created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, country, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		if err := rows.Scan(
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
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// UpdateLastLogin stamps last_login with the current time
func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET last_login = $1 WHERE id = $2`

	result, err := r.pool.Exec(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// Deactivate clears is_active. Accounts are never physically removed by
// this path; existing sessions stay in place and are refused at
// validation time.
func (r *userRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET is_active = FALSE WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// Delete removes a user. Sessions cascade in the database.
func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM users WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *userRepository) scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
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
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return user, nil
}

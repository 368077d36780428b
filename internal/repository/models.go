package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Country is the closed set of countries this deployment knows about.
// The database enforces the same set with a CHECK constraint.
type Country string

const (
	CountryFrance Country = "FRANCE"
	CountrySuisse Country = "SUISSE"
	CountryUSA    Country = "USA"
)

// Countries lists every legal Country value.
func Countries() []Country {
	return []Country{CountryFrance, CountrySuisse, CountryUSA}
}

// ParseCountry converts a string into a Country, case-insensitively.
func ParseCountry(s string) (Country, error) {
	c := Country(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown country %q", s)
	}
	return c, nil
}

// Valid reports whether c is one of the known countries.
func (c Country) Valid() bool {
	switch c {
	case CountryFrance, CountrySuisse, CountryUSA:
		return true
	}
	return false
}

// AdminRole returns the admin role name for the country (e.g. admin_france).
func (c Country) AdminRole() string {
	return "admin_" + strings.ToLower(string(c))
}

// ResearcherRole returns the researcher role name for the country
// (e.g. chercheur_suisse).
func (c Country) ResearcherRole() string {
	return "chercheur_" + strings.ToLower(string(c))
}

// Roles returns the role vocabulary accepted for the country. The role
// column itself is an open string; this is the conventional set new
// accounts are constrained to.
func (c Country) Roles() []string {
	return []string{c.AdminRole(), c.ResearcherRole()}
}

// IsAdminRole reports whether role denotes an administrator of any country.
func IsAdminRole(role string) bool {
	return strings.HasPrefix(role, "admin_")
}

// User represents a user account in the database
type User struct {
	ID           uuid.UUID  `db:"id"`
	Username     string     `db:"username"`
	PasswordHash string     `db:"password_hash"`
	Country      Country    `db:"country"`
	Role         string     `db:"role"`
	Email        *string    `db:"email"`
	FullName     *string    `db:"full_name"`
	IsActive     bool       `db:"is_active"`
	CreatedAt    time.Time  `db:"created_at"`
	LastLogin    *time.Time `db:"last_login"`
}

// IsAdmin reports whether the user holds an admin role.
func (u *User) IsAdmin() bool {
	return IsAdminRole(u.Role)
}

// Session represents an authentication session in the database.
// The token is the opaque credential a client presents after login;
// the row is valid only while ExpiresAt is in the future.
type Session struct {
	ID        uuid.UUID `db:"id"`
	Token     string    `db:"token"`
	UserID    uuid.UUID `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
	IPAddress *string   `db:"ip_address"`
	UserAgent *string   `db:"user_agent"`
}

// ExpiredAt reports whether the session is expired at the given instant.
// A session is valid strictly before ExpiresAt.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// FailedLoginAttempt represents a failed login attempt for brute force protection
type FailedLoginAttempt struct {
	ID          int64     `db:"id"`
	Username    string    `db:"username"`
	IPAddress   string    `db:"ip_address"`
	AttemptedAt time.Time `db:"attempted_at"`
}

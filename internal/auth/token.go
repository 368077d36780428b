package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/epiwatch/epiwatch-api/internal/repository"
)

// SessionTokenBytes is the entropy of a session token. 32 random bytes
// encoded as url-safe base64 yield a fixed 43-character token; the
// space is large enough that collisions are a database-constraint
// curiosity, not an expected event.
const SessionTokenBytes = 32

// GenerateSessionToken returns a new cryptographically random opaque
// session token.
func GenerateSessionToken() (string, error) {
	buf := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Claims is the JWT claims structure for access tokens. Access tokens
// are a convenience beside the database-backed session and carry the
// identity snapshot taken at login.
type Claims struct {
	Username string             `json:"username"`
	Country  repository.Country `json:"country"`
	Role     string             `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and validates JWT access tokens
type TokenService struct {
	secret string
	expiry time.Duration
	issuer string
}

// TokenServiceConfig holds configuration for TokenService
type TokenServiceConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	return &TokenService{
		secret: cfg.Secret,
		expiry: cfg.Expiry,
		issuer: cfg.Issuer,
	}
}

// GenerateAccessToken generates a signed access token for the given user
func (s *TokenService) GenerateAccessToken(user *repository.User) (string, error) {
	now := time.Now()

	claims := Claims{
		Username: user.Username,
		Country:  user.Country,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

// ValidateAccessToken validates an access token and returns the claims
func (s *TokenService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.secret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// Expiry returns the access token lifetime
func (s *TokenService) Expiry() time.Duration {
	return s.expiry
}

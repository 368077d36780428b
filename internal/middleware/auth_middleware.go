package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/epiwatch/epiwatch-api/internal/auth"
	appctx "github.com/epiwatch/epiwatch-api/internal/context"
	"github.com/epiwatch/epiwatch-api/internal/repository"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuthMiddleware authenticates requests against the session store
type AuthMiddleware struct {
	manager *auth.SessionManager
}

// NewAuthMiddleware creates a new AuthMiddleware instance
func NewAuthMiddleware(manager *auth.SessionManager) *AuthMiddleware {
	return &AuthMiddleware{manager: manager}
}

// Authenticate validates the presented session token and injects the
// owning user into the request context. Expired, revoked and unknown
// tokens — and tokens whose owner was deactivated — are all answered
// with the same INVALID_SESSION response so the caller learns nothing
// about which condition triggered.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			m.writeError(w, http.StatusUnauthorized, auth.CodeInvalidSession, "Authentication required")
			return
		}

		user, err := m.manager.Validate(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrSessionNotFound) ||
				errors.Is(err, auth.ErrSessionExpired) ||
				errors.Is(err, auth.ErrUserInactive) {
				m.writeError(w, http.StatusUnauthorized, auth.CodeInvalidSession, "Invalid session")
				return
			}
			m.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
			return
		}

		ctx := appctx.WithUser(r.Context(), user)
		ctx = appctx.WithSessionToken(ctx, token)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects requests whose authenticated user does not hold
// an admin role. Must be mounted behind Authenticate.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := appctx.ExtractUser(r.Context())
		if !ok {
			m.writeError(w, http.StatusUnauthorized, auth.CodeInvalidSession, "Authentication required")
			return
		}
		if !user.IsAdmin() {
			m.writeError(w, http.StatusForbidden, auth.CodeAdminRequired, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCountry rejects users that do not belong to the instance's
// country. A stale cross-country session is a configuration accident,
// not an attack, but it must not read another country's data.
func (m *AuthMiddleware) RequireCountry(country repository.Country) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := appctx.ExtractUser(r.Context())
			if !ok {
				m.writeError(w, http.StatusUnauthorized, auth.CodeInvalidSession, "Authentication required")
				return
			}
			if user.Country != country {
				m.writeError(w, http.StatusForbidden, auth.CodeWrongCountry, "Access denied for this country instance")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken pulls the session token from the auth cookie or, failing
// that, a Bearer authorization header. Cookie wins, matching the
// behaviour clients already rely on.
func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(auth.AuthCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// writeError writes a JSON error response
func (m *AuthMiddleware) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}

	json.NewEncoder(w).Encode(response)
}

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	appctx "github.com/epiwatch/epiwatch-api/internal/context"
)

// AuthCookieName is the cookie the login handler sets with the session token
const AuthCookieName = "auth_token"

// APIResponse represents the standard API response format
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents the error detail in API response
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// AuthHandler handles HTTP requests for authentication endpoints
type AuthHandler struct {
	authService  *AuthService
	reaper       *Reaper
	validate     *validator.Validate
	cookieSecure bool
}

// AuthHandlerConfig holds AuthHandler configuration
type AuthHandlerConfig struct {
	AuthService *AuthService
	Reaper      *Reaper
	// CookieSecure marks the auth cookie Secure; on behind TLS
	CookieSecure bool
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		authService:  cfg.AuthService,
		reaper:       cfg.Reaper,
		validate:     validator.New(),
		cookieSecure: cfg.CookieSecure,
	}
}

// Login handles user authentication
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", validationDetails(err))
		return
	}

	meta := SessionMetadata{
		IPAddress: getClientIP(r),
		UserAgent: r.UserAgent(),
	}

	response, err := h.authService.Login(r.Context(), req, meta)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid credentials", nil)
			return
		}
		if errors.Is(err, ErrTooManyAttempts) {
			details := map[string][]string{
				"retry_after": {"900"},
			}
			h.writeError(w, http.StatusTooManyRequests, CodeTooManyAttempts, "Too many failed login attempts. Please try again later.", details)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    response.SessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(response.ExpiresIn),
	})

	h.writeSuccess(w, http.StatusOK, response)
}

// Logout handles user logout
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := appctx.ExtractSessionToken(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeInvalidSession, "Authentication required", nil)
		return
	}

	if err := h.authService.Logout(r.Context(), token); err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "Logout successful",
	})
}

// GetMe returns the authenticated user
// GET /api/v1/auth/me
func (h *AuthHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := appctx.ExtractUser(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, CodeInvalidSession, "Authentication required", nil)
		return
	}

	resp := newUserResponse(user)
	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"user": resp,
	})
}

// ListUsers returns the users of the instance's country (admin only)
// GET /api/v1/auth/users?role=...
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.authService.ListUsers(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"users": users,
	})
}

// CreateUser provisions a new account (admin only)
// POST /api/v1/auth/users
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body", nil)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", validationDetails(err))
		return
	}

	user, pwErrs, err := h.authService.CreateUser(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrRoleNotAllowed):
			details := map[string][]string{
				"role": {"Valid roles: " + strings.Join(h.authService.Country().Roles(), ", ")},
			}
			h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid role for this country", details)
		case errors.Is(err, ErrUsernameTaken):
			h.writeError(w, http.StatusConflict, CodeUsernameTaken, "Username already exists", nil)
		default:
			h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		}
		return
	}

	if len(pwErrs) > 0 {
		details := make(map[string][]string)
		for _, e := range pwErrs {
			details[e.Field] = append(details[e.Field], e.Message)
		}
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Request validation failed", details)
		return
	}

	h.writeSuccess(w, http.StatusCreated, map[string]interface{}{
		"user": user,
	})
}

// DeleteUser removes an account (admin only, same country, non-admin targets)
// DELETE /api/v1/auth/users/{id}
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid user id", nil)
		return
	}

	if err := h.authService.DeleteUser(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, CodeUserNotFound, "User not found", nil)
		case errors.Is(err, ErrWrongCountry):
			h.writeError(w, http.StatusForbidden, CodeWrongCountry, "Can only delete users from your country", nil)
		case errors.Is(err, ErrAdminProtected):
			h.writeError(w, http.StatusForbidden, CodeAdminRequired, "Cannot delete admin users", nil)
		default:
			h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		}
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "User deleted successfully",
	})
}

// DeactivateUser flags an account inactive (admin only, same country)
// POST /api/v1/auth/users/{id}/deactivate
func (h *AuthHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid user id", nil)
		return
	}

	if err := h.authService.DeactivateUser(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, CodeUserNotFound, "User not found", nil)
		case errors.Is(err, ErrWrongCountry):
			h.writeError(w, http.StatusForbidden, CodeWrongCountry, "Can only manage users from your country", nil)
		default:
			h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		}
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]string{
		"message": "User deactivated successfully",
	})
}

// Cleanup runs an on-demand session sweep (admin only)
// POST /api/v1/auth/cleanup
func (h *AuthHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.reaper.Sweep(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Sweep failed", nil)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"sessions_removed": removed,
	})
}

// writeSuccess writes a JSON success response
func (h *AuthHandler) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// writeError writes a JSON error response
func (h *AuthHandler) writeError(w http.ResponseWriter, statusCode int, code, message string, details map[string][]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	})
}

// validationDetails converts validator errors into the response details map
func validationDetails(err error) map[string][]string {
	details := make(map[string][]string)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := strings.ToLower(fe.Field())
			details[field] = append(details[field], "failed on rule: "+fe.Tag())
		}
		return details
	}

	details["request"] = []string{err.Error()}
	return details
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}

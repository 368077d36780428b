package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	appctx "github.com/epiwatch/epiwatch-api/internal/context"
	"github.com/epiwatch/epiwatch-api/internal/repository"
)

// newTestRouter wires the real handler stack over mock repositories.
// The authenticate and admin middlewares are replaced by a stub that
// injects the given user, so handler behaviour is tested in isolation
// from the middleware package.
func newTestRouter(t *testing.T, service *AuthService, sessions *mockSessionRepository, as *repository.User) chi.Router {
	t.Helper()

	reaper := NewReaper(sessions, DefaultReaperConfig(), testLogger())
	handler := NewAuthHandler(AuthHandlerConfig{
		AuthService: service,
		Reaper:      reaper,
	})

	inject := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if as != nil {
				ctx = appctx.WithUser(ctx, as)
				if cookie, err := r.Cookie(AuthCookieName); err == nil {
					ctx = appctx.WithSessionToken(ctx, cookie.Value)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	passthrough := func(next http.Handler) http.Handler { return next }

	r := chi.NewRouter()
	RegisterRoutes(r, handler, inject, passthrough, passthrough)
	return r
}

func postJSON(t *testing.T, router chi.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestLoginEndpoint_SetsCookie(t *testing.T) {
	service, users, sessions := newTestAuthService(t, repository.CountryFrance)
	seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")
	router := newTestRouter(t, service, sessions, nil)

	rec := postJSON(t, router, "/auth/login", LoginRequest{
		Username: "chercheur_fr",
		Password: "research123",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatal("expected a success envelope")
	}

	cookie := findCookie(rec, AuthCookieName)
	if cookie == nil {
		t.Fatal("expected the auth cookie to be set")
	}
	if !cookie.HttpOnly {
		t.Error("the auth cookie must be HttpOnly")
	}
	if cookie.MaxAge != 3600 {
		t.Errorf("cookie MaxAge = %d, want 3600", cookie.MaxAge)
	}
	if _, ok := sessions.sessions[cookie.Value]; !ok {
		t.Error("the cookie value must be the stored session token")
	}
}

func TestLoginEndpoint_InvalidCredentials(t *testing.T) {
	service, users, sessions := newTestAuthService(t, repository.CountryFrance)
	seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")
	router := newTestRouter(t, service, sessions, nil)

	rec := postJSON(t, router, "/auth/login", LoginRequest{
		Username: "chercheur_fr",
		Password: "wrong-password",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != CodeInvalidCredentials {
		t.Fatalf("expected %s, got %+v", CodeInvalidCredentials, resp.Error)
	}
	if cookie := findCookie(rec, AuthCookieName); cookie != nil {
		t.Error("a failed login must not set the auth cookie")
	}
}

func TestLoginEndpoint_ValidationFailures(t *testing.T) {
	service, _, sessions := newTestAuthService(t, repository.CountryFrance)
	router := newTestRouter(t, service, sessions, nil)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing username", LoginRequest{Password: "research123"}},
		{"missing password", LoginRequest{Username: "chercheur_fr"}},
		{"empty body", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, router, "/auth/login", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			resp := decodeResponse(t, rec)
			if resp.Error == nil || resp.Error.Code != CodeValidationError {
				t.Fatalf("expected %s, got %+v", CodeValidationError, resp.Error)
			}
		})
	}
}

func TestLoginEndpoint_MalformedBody(t *testing.T) {
	service, _, sessions := newTestAuthService(t, repository.CountryFrance)
	router := newTestRouter(t, service, sessions, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLogoutEndpoint_ClearsCookie(t *testing.T) {
	service, users, sessions := newTestAuthService(t, repository.CountryFrance)
	user := seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")

	loginResp, err := service.Login(t.Context(), LoginRequest{
		Username: "chercheur_fr",
		Password: "research123",
	}, SessionMetadata{})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	router := newTestRouter(t, service, sessions, user)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: loginResp.SessionToken})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	cookie := findCookie(rec, AuthCookieName)
	if cookie == nil || cookie.MaxAge != -1 {
		t.Error("logout must clear the auth cookie")
	}
	if _, ok := sessions.sessions[loginResp.SessionToken]; ok {
		t.Error("the session row must be revoked")
	}
}

func TestGetMeEndpoint(t *testing.T) {
	service, users, sessions := newTestAuthService(t, repository.CountryFrance)
	user := seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")
	router := newTestRouter(t, service, sessions, user)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	me := data["user"].(map[string]interface{})
	if me["username"] != "chercheur_fr" {
		t.Errorf("expected the authenticated user, got %v", me["username"])
	}
}

func TestCreateUserEndpoint_RoleRejection(t *testing.T) {
	service, users, sessions := newTestAuthService(t, repository.CountryFrance)
	admin := seedUser(t, users, "admin_fr", "admin12345", repository.CountryFrance, "admin_france")
	router := newTestRouter(t, service, sessions, admin)

	rec := postJSON(t, router, "/auth/users", CreateUserRequest{
		Username: "intrus",
		Password: "motdepasse1",
		Role:     "admin_usa",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || len(resp.Error.Details["role"]) == 0 {
		t.Fatal("expected the valid role vocabulary in the details")
	}
}

func TestCleanupEndpoint(t *testing.T) {
	service, users, sessions := newTestAuthService(t, repository.CountryFrance)
	admin := seedUser(t, users, "admin_fr", "admin12345", repository.CountryFrance, "admin_france")
	seedSession(t, sessions, admin, "stale", time.Now().UTC().Add(-time.Hour))
	seedSession(t, sessions, admin, "live", time.Now().UTC().Add(time.Hour))

	router := newTestRouter(t, service, sessions, admin)

	req := httptest.NewRequest(http.MethodPost, "/auth/cleanup", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	if data["sessions_removed"].(float64) != 1 {
		t.Errorf("expected 1 removed session, got %v", data["sessions_removed"])
	}
	if _, ok := sessions.sessions["live"]; !ok {
		t.Error("the live session must survive the cleanup")
	}
}

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/epiwatch/epiwatch-api/internal/repository"
)

func newTestSessionManager(t rapid.TB) (*SessionManager, *mockUserRepository, *mockSessionRepository) {
	t.Helper()
	users := newMockUserRepository()
	sessions := newMockSessionRepository(users)
	return NewSessionManager(sessions, users, testLogger()), users, sessions
}

func TestIssueThenValidate(t *testing.T) {
	manager, users, _ := newTestSessionManager(t)
	user := seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")

	token, err := manager.Issue(context.Background(), user.ID, time.Hour, SessionMetadata{
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
	})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty token")
	}

	got, err := manager.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Validate resolved the wrong user: got %s, want %s", got.ID, user.ID)
	}
}

func TestIssue_UnknownUser(t *testing.T) {
	manager, _, _ := newTestSessionManager(t)

	_, err := manager.Issue(context.Background(), uuid.New(), time.Hour, SessionMetadata{})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestIssue_InactiveUser(t *testing.T) {
	manager, users, _ := newTestSessionManager(t)
	user := seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")
	user.IsActive = false

	_, err := manager.Issue(context.Background(), user.ID, time.Hour, SessionMetadata{})
	if !errors.Is(err, ErrUserInactive) {
		t.Fatalf("expected ErrUserInactive, got %v", err)
	}
}

// A generator collision must be retried with a fresh token, and the
// original session must survive untouched.
func TestIssue_TokenCollisionRetries(t *testing.T) {
	manager, users, sessions := newTestSessionManager(t)
	user := seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")

	tokens := []string{"collision", "collision", "fresh-token"}
	i := 0
	manager.generate = func() (string, error) {
		token := tokens[i]
		i++
		return token, nil
	}

	first, err := manager.Issue(context.Background(), user.ID, time.Hour, SessionMetadata{})
	if err != nil {
		t.Fatalf("first Issue failed: %v", err)
	}
	if first != "collision" {
		t.Fatalf("expected first token %q, got %q", "collision", first)
	}

	second, err := manager.Issue(context.Background(), user.ID, time.Hour, SessionMetadata{})
	if err != nil {
		t.Fatalf("second Issue failed after collision: %v", err)
	}
	if second != "fresh-token" {
		t.Errorf("expected the retried token, got %q", second)
	}

	if _, ok := sessions.sessions["collision"]; !ok {
		t.Error("the colliding session must keep its original row")
	}
	if _, ok := sessions.sessions["fresh-token"]; !ok {
		t.Error("the retried session row is missing")
	}
}

func TestIssue_CollisionRetriesExhausted(t *testing.T) {
	manager, users, _ := newTestSessionManager(t)
	user := seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")

	manager.generate = func() (string, error) { return "stuck", nil }

	if _, err := manager.Issue(context.Background(), user.ID, time.Hour, SessionMetadata{}); err != nil {
		t.Fatalf("first Issue failed: %v", err)
	}

	_, err := manager.Issue(context.Background(), user.ID, time.Hour, SessionMetadata{})
	if !errors.Is(err, repository.ErrTokenConflict) {
		t.Fatalf("expected the conflict to surface after retries, got %v", err)
	}
}

// Expiry is evaluated lazily against the injected clock: the same row
// answers differently as time moves, with no sweep involved.
func TestValidate_ExpiryOverTime(t *testing.T) {
	manager, users, _ := newTestSessionManager(t)
	user := seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := t0
	manager.now = func() time.Time { return current }

	token, err := manager.Issue(context.Background(), user.ID, time.Hour, SessionMetadata{})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"immediately after issue", t0, nil},
		{"well inside the ttl", t0.Add(30 * time.Minute), nil},
		{"one instant before expiry", t0.Add(time.Hour - time.Nanosecond), nil},
		{"exactly at expiry", t0.Add(time.Hour), ErrSessionExpired},
		{"past expiry", t0.Add(61 * time.Minute), ErrSessionExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current = tt.at
			_, err := manager.Validate(context.Background(), token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate at %s: got %v, want %v", tt.at, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_UnknownToken(t *testing.T) {
	manager, _, _ := newTestSessionManager(t)

	_, err := manager.Validate(context.Background(), "never-issued")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

// Deactivation refuses the session immediately even though the row is
// neither expired nor swept yet.
func TestValidate_DeactivatedOwner(t *testing.T) {
	manager, users, _ := newTestSessionManager(t)
	user := seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")

	token, err := manager.Issue(context.Background(), user.ID, time.Hour, SessionMetadata{})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	user.IsActive = false

	_, err = manager.Validate(context.Background(), token)
	if !errors.Is(err, ErrUserInactive) {
		t.Fatalf("expected ErrUserInactive, got %v", err)
	}
}

func TestRevoke_Idempotent(t *testing.T) {
	manager, users, _ := newTestSessionManager(t)
	user := seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")

	token, err := manager.Issue(context.Background(), user.ID, time.Hour, SessionMetadata{})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if err := manager.Revoke(context.Background(), token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := manager.Validate(context.Background(), token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected the revoked token to be unknown, got %v", err)
	}

	// Revoking again, or revoking garbage, succeeds quietly.
	if err := manager.Revoke(context.Background(), token); err != nil {
		t.Errorf("second Revoke failed: %v", err)
	}
	if err := manager.Revoke(context.Background(), "never-issued"); err != nil {
		t.Errorf("Revoke of an unknown token failed: %v", err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	manager, users, _ := newTestSessionManager(t)
	user := seedUser(t, users, "chercheur_fr", "research123", repository.CountryFrance, "chercheur_france")
	other := seedUser(t, users, "admin_fr", "admin12345", repository.CountryFrance, "admin_france")

	var tokens []string
	for i := 0; i < 3; i++ {
		token, err := manager.Issue(context.Background(), user.ID, time.Hour, SessionMetadata{})
		if err != nil {
			t.Fatalf("Issue %d failed: %v", i, err)
		}
		tokens = append(tokens, token)
	}
	otherToken, err := manager.Issue(context.Background(), other.ID, time.Hour, SessionMetadata{})
	if err != nil {
		t.Fatalf("Issue for other user failed: %v", err)
	}

	revoked, err := manager.RevokeAllForUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("RevokeAllForUser failed: %v", err)
	}
	if revoked != 3 {
		t.Errorf("expected 3 revoked sessions, got %d", revoked)
	}

	for _, token := range tokens {
		if _, err := manager.Validate(context.Background(), token); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("token %q should be gone, got %v", token, err)
		}
	}
	if _, err := manager.Validate(context.Background(), otherToken); err != nil {
		t.Errorf("the other user's session must survive, got %v", err)
	}
}

// Issuing many sessions yields distinct tokens, and every one of them
// validates back to its own user.
func TestIssuedTokensAreDistinct(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		manager, users, _ := newTestSessionManager(t)

		count := rapid.IntRange(2, 50).Draw(t, "count")
		seen := make(map[string]uuid.UUID, count)

		for i := 0; i < count; i++ {
			user := &repository.User{
				Username:     rapid.StringMatching(`user_[a-z0-9]{8}`).Draw(t, "username"),
				PasswordHash: "irrelevant",
				Country:      repository.CountryFrance,
				Role:         "chercheur_france",
				IsActive:     true,
			}
			if err := users.Create(context.Background(), user); err != nil {
				// Generated usernames may repeat; skip duplicates.
				continue
			}

			token, err := manager.Issue(context.Background(), user.ID, time.Hour, SessionMetadata{})
			if err != nil {
				t.Fatalf("Issue failed: %v", err)
			}
			if owner, dup := seen[token]; dup {
				t.Fatalf("token %q issued twice (users %s and %s)", token, owner, user.ID)
			}
			seen[token] = user.ID
		}

		for token, userID := range seen {
			got, err := manager.Validate(context.Background(), token)
			if err != nil {
				t.Fatalf("Validate failed for issued token: %v", err)
			}
			if got.ID != userID {
				t.Fatalf("token %q resolved to the wrong user", token)
			}
		}
	})
}

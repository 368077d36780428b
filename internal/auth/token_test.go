package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"github.com/epiwatch/epiwatch-api/internal/repository"
)

func TestGenerateSessionToken_Shape(t *testing.T) {
	token, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("GenerateSessionToken failed: %v", err)
	}

	// 32 bytes of raw url-safe base64 is always 43 characters.
	if len(token) != 43 {
		t.Errorf("expected a 43-character token, got %d: %q", len(token), token)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("token %q contains non-url-safe characters", token)
	}
}

func TestGenerateSessionToken_Uniqueness(t *testing.T) {
	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		token, err := GenerateSessionToken()
		if err != nil {
			t.Fatalf("GenerateSessionToken failed at %d: %v", i, err)
		}
		if seen[token] {
			t.Fatalf("duplicate token after %d generations: %q", i, token)
		}
		seen[token] = true
	}
}

func newTestTokenService(expiry time.Duration) *TokenService {
	return NewTokenService(TokenServiceConfig{
		Secret: "test-secret",
		Expiry: expiry,
		Issuer: "epiwatch-api",
	})
}

func testUser(username string, country repository.Country, role string) *repository.User {
	return &repository.User{
		ID:       uuid.New(),
		Username: username,
		Country:  country,
		Role:     role,
		IsActive: true,
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	service := newTestTokenService(15 * time.Minute)
	user := testUser("chercheur_fr", repository.CountryFrance, "chercheur_france")

	token, err := service.GenerateAccessToken(user)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	claims, err := service.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}

	if claims.Username != user.Username {
		t.Errorf("username: got %q, want %q", claims.Username, user.Username)
	}
	if claims.Country != user.Country {
		t.Errorf("country: got %q, want %q", claims.Country, user.Country)
	}
	if claims.Role != user.Role {
		t.Errorf("role: got %q, want %q", claims.Role, user.Role)
	}
	if claims.Subject != user.ID.String() {
		t.Errorf("subject: got %q, want %q", claims.Subject, user.ID)
	}
	if claims.Issuer != "epiwatch-api" {
		t.Errorf("issuer: got %q", claims.Issuer)
	}
}

func TestAccessToken_WrongSecretRejected(t *testing.T) {
	issuer := newTestTokenService(15 * time.Minute)
	verifier := NewTokenService(TokenServiceConfig{
		Secret: "a-different-secret",
		Expiry: 15 * time.Minute,
		Issuer: "epiwatch-api",
	})

	token, err := issuer.GenerateAccessToken(testUser("chercheur_fr", repository.CountryFrance, "chercheur_france"))
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := verifier.ValidateAccessToken(token); err == nil {
		t.Fatal("expected validation to fail under a different secret")
	}
}

func TestAccessToken_ExpiredRejected(t *testing.T) {
	service := newTestTokenService(-time.Minute)

	token, err := service.GenerateAccessToken(testUser("chercheur_fr", repository.CountryFrance, "chercheur_france"))
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := service.ValidateAccessToken(token); err == nil {
		t.Fatal("expected an expired token to be rejected")
	}
}

func TestAccessToken_GarbageRejected(t *testing.T) {
	service := newTestTokenService(15 * time.Minute)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not a jwt", "not-a-jwt"},
		{"truncated", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.ValidateAccessToken(tt.token); err == nil {
				t.Error("expected validation to fail")
			}
		})
	}
}

// Whatever identity goes into an access token must come back out of
// its own claims, for any user shape.
func TestAccessToken_ClaimsPreserved(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		service := newTestTokenService(15 * time.Minute)

		country := rapid.SampledFrom(repository.Countries()).Draw(t, "country")
		role := rapid.SampledFrom(country.Roles()).Draw(t, "role")
		username := rapid.StringMatching(`[a-z][a-z0-9_]{2,30}`).Draw(t, "username")

		user := testUser(username, country, role)

		token, err := service.GenerateAccessToken(user)
		if err != nil {
			t.Fatalf("GenerateAccessToken failed: %v", err)
		}

		claims, err := service.ValidateAccessToken(token)
		if err != nil {
			t.Fatalf("ValidateAccessToken failed: %v", err)
		}
		if claims.Username != username || claims.Country != country || claims.Role != role {
			t.Fatalf("claims do not match input: %+v", claims)
		}
	})
}

package repository

import (
	"testing"
	"time"
)

func TestParseCountry(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Country
		wantErr bool
	}{
		{"uppercase", "FRANCE", CountryFrance, false},
		{"lowercase", "suisse", CountrySuisse, false},
		{"mixed case", "Usa", CountryUSA, false},
		{"surrounding whitespace", "  france  ", CountryFrance, false},
		{"unknown", "GERMANY", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCountry(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCountry(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseCountry(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCountryRoles(t *testing.T) {
	tests := []struct {
		country    Country
		admin      string
		researcher string
	}{
		{CountryFrance, "admin_france", "chercheur_france"},
		{CountrySuisse, "admin_suisse", "chercheur_suisse"},
		{CountryUSA, "admin_usa", "chercheur_usa"},
	}

	for _, tt := range tests {
		t.Run(string(tt.country), func(t *testing.T) {
			if got := tt.country.AdminRole(); got != tt.admin {
				t.Errorf("AdminRole() = %q, want %q", got, tt.admin)
			}
			if got := tt.country.ResearcherRole(); got != tt.researcher {
				t.Errorf("ResearcherRole() = %q, want %q", got, tt.researcher)
			}

			roles := tt.country.Roles()
			if len(roles) != 2 || roles[0] != tt.admin || roles[1] != tt.researcher {
				t.Errorf("Roles() = %v", roles)
			}
		})
	}
}

func TestIsAdminRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{"admin_france", true},
		{"admin_usa", true},
		{"chercheur_france", false},
		{"", false},
		{"administrator", false},
	}

	for _, tt := range tests {
		if got := IsAdminRole(tt.role); got != tt.want {
			t.Errorf("IsAdminRole(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}

	admin := &User{Role: "admin_suisse"}
	if !admin.IsAdmin() {
		t.Error("expected admin_suisse to be an admin")
	}
	researcher := &User{Role: "chercheur_suisse"}
	if researcher.IsAdmin() {
		t.Error("expected chercheur_suisse not to be an admin")
	}
}

// A session is valid strictly before ExpiresAt: the expiry instant
// itself is already expired.
func TestSessionExpiredAt(t *testing.T) {
	expiresAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session := &Session{ExpiresAt: expiresAt}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"well before expiry", expiresAt.Add(-time.Hour), false},
		{"one nanosecond before", expiresAt.Add(-time.Nanosecond), false},
		{"exactly at expiry", expiresAt, true},
		{"after expiry", expiresAt.Add(time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := session.ExpiredAt(tt.now); got != tt.want {
				t.Errorf("ExpiredAt(%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

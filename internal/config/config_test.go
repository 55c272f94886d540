package config

import (
	"strings"
	"testing"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATA_STORE", "memory")
	t.Setenv("PORT", "8080")
	t.Setenv("SERVICE_URL", "")
	t.Setenv("SERVICE_KEY", "")
	t.Setenv("IDENTITY_URL", "")
	t.Setenv("REST_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTH_GOOGLE_CLIENT_ID", "")
	t.Setenv("AUTH_GOOGLE_CLIENT_SECRET", "")
	t.Setenv("REQUIRE_EMAIL_VERIFICATION", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.HTTPPort != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.HTTPPort)
	}
	if cfg.RequireEmailVerification {
		t.Fatal("expected email verification to default to disabled")
	}
	if !cfg.UseInMemoryStore() {
		t.Fatal("expected memory store by default")
	}
	if cfg.GoogleRedirectURL != "http://localhost:8080/auth/google/callback" {
		t.Fatalf("unexpected derived redirect URL %q", cfg.GoogleRedirectURL)
	}
}

func TestLoadDerivesServiceURLs(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SERVICE_URL", "https://abc.example.co/")
	t.Setenv("SERVICE_KEY", "anon-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.IdentityURL() != "https://abc.example.co/auth/v1" {
		t.Fatalf("unexpected identity URL %q", cfg.IdentityURL())
	}
	if cfg.RestURL() != "https://abc.example.co/rest/v1" {
		t.Fatalf("unexpected rest URL %q", cfg.RestURL())
	}
	if cfg.EmailRedirectURL() != "http://localhost:8080/auth/callback" {
		t.Fatalf("unexpected email redirect URL %q", cfg.EmailRedirectURL())
	}
}

func TestLoadExplicitURLsWinOverServiceURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SERVICE_URL", "https://abc.example.co")
	t.Setenv("IDENTITY_URL", "https://auth.example.co/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.IdentityURL() != "https://auth.example.co" {
		t.Fatalf("expected explicit identity URL to win, got %q", cfg.IdentityURL())
	}
}

func TestLoadRequiresDatabaseURLForPostgres(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_STORE", "postgres")
	t.Setenv("SERVICE_URL", "https://abc.example.co")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DATA_STORE is postgres without DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresRestURLForRestStore(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_STORE", "rest")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DATA_STORE is rest without any service URL")
	}
}

func TestLoadRejectsUnknownDataStore(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATA_STORE", "etcd")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unknown DATA_STORE")
	}
	if !strings.Contains(err.Error(), "unknown DATA_STORE") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRequiresGoogleSecretWhenClientIDSet(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("AUTH_GOOGLE_CLIENT_ID", "client-id")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when client secret missing")
	}
	if !strings.Contains(err.Error(), "AUTH_GOOGLE_CLIENT_SECRET") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadParsesVerificationFlag(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("REQUIRE_EMAIL_VERIFICATION", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if !cfg.RequireEmailVerification {
		t.Fatal("expected RequireEmailVerification to be true")
	}
}

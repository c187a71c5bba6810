package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "leadscope",
			Password: "secret", Name: "leadscope", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		JWT: JWTConfig{
			AccessSecret:  "access-secret-that-is-at-least-32-chars!",
			RefreshSecret: "refresh-secret-that-is-at-least-32-chr!",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
		},
		Quota: QuotaConfig{Cap: 50, Window: 24 * time.Hour},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_JWTAccessSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_ACCESS_SECRET") {
		t.Fatalf("expected JWT_ACCESS_SECRET error, got: %v", err)
	}
}

func TestValidate_JWTSecretsMustDiffer(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.AccessSecret = "the-same-secret-that-is-at-least-32-chars!"
	cfg.JWT.RefreshSecret = "the-same-secret-that-is-at-least-32-chars!"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected 'must differ' error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_QuotaCapMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.Quota.Cap = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "QUOTA_CAP") {
		t.Fatalf("expected QUOTA_CAP error, got: %v", err)
	}
}

func TestValidate_QuotaWindowMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.Quota.Window = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "QUOTA_WINDOW") {
		t.Fatalf("expected QUOTA_WINDOW error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0},
		DB:     DBConfig{Port: 5432},
		Redis:  RedisConfig{Port: 6379},
		Quota:  QuotaConfig{Cap: 50, Window: 24 * time.Hour},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET", "DB_PASSWORD", "SERVER_PORT"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}

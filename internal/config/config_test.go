package config

import (
	"strings"
	"testing"
	"time"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MASTER_KEY_ID", "prod-1")
	t.Setenv("MASTER_KEYS", "prod-1:"+strings.Repeat("11", 32)+",prod-0:"+strings.Repeat("22", 32))
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret")
}

func TestLoad_DefaultsAndParsing(t *testing.T) {
	setValidEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTokenTTL != time.Hour {
		t.Fatalf("AccessTokenTTL=%v, want 1h", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 168*time.Hour {
		t.Fatalf("RefreshTokenTTL=%v, want 168h", cfg.RefreshTokenTTL)
	}
	if cfg.DataKeyCacheTTL != time.Hour || cfg.DataKeySweepInterval != 10*time.Minute {
		t.Fatalf("cache policy defaults wrong: %v/%v", cfg.DataKeyCacheTTL, cfg.DataKeySweepInterval)
	}
	if cfg.BcryptCost != 10 {
		t.Fatalf("BcryptCost=%d, want 10", cfg.BcryptCost)
	}
	if len(cfg.MFARequiredRoles) != 2 || cfg.MFARequiredRoles[0] != "pharmacist" {
		t.Fatalf("MFARequiredRoles=%v", cfg.MFARequiredRoles)
	}
	if len(cfg.MasterKeys) != 2 || len(cfg.MasterKeys["prod-1"]) != 32 {
		t.Fatalf("master keys not parsed: %v", cfg.MasterKeys)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("MFA_REQUIRED_ROLES", "pharmacist, doctor, admin")
	t.Setenv("BCRYPT_COST", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("AccessTokenTTL=%v, want 15m", cfg.AccessTokenTTL)
	}
	if len(cfg.MFARequiredRoles) != 3 || cfg.MFARequiredRoles[2] != "admin" {
		t.Fatalf("MFARequiredRoles=%v", cfg.MFARequiredRoles)
	}
	if cfg.BcryptCost != 12 {
		t.Fatalf("BcryptCost=%d, want 12", cfg.BcryptCost)
	}
}

func TestLoad_Validation(t *testing.T) {
	setValidEnv(t)

	t.Run("missing master key id", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("MASTER_KEY_ID", "")
		if _, err := Load(); err == nil {
			t.Fatalf("want error on missing MASTER_KEY_ID")
		}
	})
	t.Run("active key not in ring", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("MASTER_KEY_ID", "ghost")
		if _, err := Load(); err == nil {
			t.Fatalf("want error on unknown active key")
		}
	})
	t.Run("identical secrets", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("REFRESH_TOKEN_SECRET", "access-secret")
		if _, err := Load(); err == nil {
			t.Fatalf("want error on identical token secrets")
		}
	})
	t.Run("short master key", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("MASTER_KEYS", "prod-1:aabb")
		if _, err := Load(); err == nil {
			t.Fatalf("want error on short master key")
		}
	})
	t.Run("malformed master keys", func(t *testing.T) {
		setValidEnv(t)
		t.Setenv("MASTER_KEYS", "no-colon-here")
		if _, err := Load(); err == nil {
			t.Fatalf("want error on malformed MASTER_KEYS")
		}
	})
}

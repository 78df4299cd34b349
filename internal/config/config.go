// Package config loads the security-core configuration from the environment.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full recognized option surface.
type Config struct {
	// Master keys for the keyring provider. MasterKeys maps key id to 32-byte
	// key material; MasterKeyID names the active one.
	MasterKeyID string
	MasterKeys  map[string][]byte

	// Distinct signing secrets; both required.
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	TokenIssuer        string
	TokenAudience      string

	DataKeyCacheTTL      time.Duration
	DataKeySweepInterval time.Duration

	BcryptCost int

	MFARequiredRoles []string

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	// Optional Postgres DSN; empty selects the in-memory session store.
	DatabaseURL string
}

// Load reads the environment (plus an optional .env file) and validates the
// result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // .env is optional
	v.AutomaticEnv()

	v.SetDefault("ACCESS_TOKEN_TTL", "1h")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h")
	v.SetDefault("TOKEN_ISSUER", "medisafe-auth")
	v.SetDefault("TOKEN_AUDIENCE", "medisafe-platform")
	v.SetDefault("DATA_KEY_CACHE_TTL", "1h")
	v.SetDefault("DATA_KEY_SWEEP_INTERVAL", "10m")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("MFA_REQUIRED_ROLES", "pharmacist,doctor")
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "10m")

	for _, key := range []string{
		"MASTER_KEY_ID", "MASTER_KEYS",
		"ACCESS_TOKEN_SECRET", "REFRESH_TOKEN_SECRET",
		"ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL",
		"TOKEN_ISSUER", "TOKEN_AUDIENCE",
		"DATA_KEY_CACHE_TTL", "DATA_KEY_SWEEP_INTERVAL",
		"BCRYPT_COST", "MFA_REQUIRED_ROLES",
		"SESSION_TTL", "SESSION_SWEEP_INTERVAL",
		"DATABASE_URL",
	} {
		_ = v.BindEnv(key)
	}

	cfg := &Config{
		MasterKeyID:          v.GetString("MASTER_KEY_ID"),
		AccessTokenSecret:    v.GetString("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret:   v.GetString("REFRESH_TOKEN_SECRET"),
		AccessTokenTTL:       v.GetDuration("ACCESS_TOKEN_TTL"),
		RefreshTokenTTL:      v.GetDuration("REFRESH_TOKEN_TTL"),
		TokenIssuer:          v.GetString("TOKEN_ISSUER"),
		TokenAudience:        v.GetString("TOKEN_AUDIENCE"),
		DataKeyCacheTTL:      v.GetDuration("DATA_KEY_CACHE_TTL"),
		DataKeySweepInterval: v.GetDuration("DATA_KEY_SWEEP_INTERVAL"),
		BcryptCost:           v.GetInt("BCRYPT_COST"),
		SessionTTL:           v.GetDuration("SESSION_TTL"),
		SessionSweepInterval: v.GetDuration("SESSION_SWEEP_INTERVAL"),
		DatabaseURL:          v.GetString("DATABASE_URL"),
	}

	for _, role := range strings.Split(v.GetString("MFA_REQUIRED_ROLES"), ",") {
		if role = strings.TrimSpace(role); role != "" {
			cfg.MFARequiredRoles = append(cfg.MFARequiredRoles, role)
		}
	}

	keys, err := parseMasterKeys(v.GetString("MASTER_KEYS"))
	if err != nil {
		return nil, err
	}
	cfg.MasterKeys = keys

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseMasterKeys decodes "id:hex,id2:hex" into the keyring map.
func parseMasterKeys(raw string) (map[string][]byte, error) {
	keys := make(map[string][]byte)
	if raw == "" {
		return keys, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, hexKey, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("config: MASTER_KEYS entry %q is not id:hex", pair)
		}
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("config: master key %q is not hex: %w", id, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("config: master key %q has %d bytes, want 32", id, len(key))
		}
		keys[id] = key
	}
	return keys, nil
}

func (c *Config) validate() error {
	if c.MasterKeyID == "" {
		return fmt.Errorf("config: MASTER_KEY_ID is required")
	}
	if _, ok := c.MasterKeys[c.MasterKeyID]; !ok {
		return fmt.Errorf("config: MASTER_KEY_ID %q not present in MASTER_KEYS", c.MasterKeyID)
	}
	if c.AccessTokenSecret == "" || c.RefreshTokenSecret == "" {
		return fmt.Errorf("config: ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET are required")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("config: access and refresh token secrets must differ")
	}
	return nil
}

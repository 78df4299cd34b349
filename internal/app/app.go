// Package app composes the security core from its configuration: key ring,
// data-key cache, field cipher, hasher, token service, session store, and MFA.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medisafe/vaultcore/internal/config"
	"github.com/medisafe/vaultcore/internal/fieldcrypt"
	"github.com/medisafe/vaultcore/internal/keycache"
	"github.com/medisafe/vaultcore/internal/kms"
	"github.com/medisafe/vaultcore/internal/mfa"
	"github.com/medisafe/vaultcore/internal/password"
	"github.com/medisafe/vaultcore/internal/service"
	"github.com/medisafe/vaultcore/internal/session"
	"github.com/medisafe/vaultcore/internal/session/postgres"
	"github.com/medisafe/vaultcore/internal/token"
)

// App is the assembled security core.
type App struct {
	Config   *config.Config
	Keys     *kms.Keyring
	KeyCache *keycache.Cache
	Fields   *fieldcrypt.Cipher
	Hasher   *password.Hasher
	Tokens   *token.Service
	Sessions session.Store
	MFA      *mfa.Service
	// Auth is assembled only when a credential store is supplied.
	Auth *service.AuthService

	db  *postgres.DB
	mem *session.MemoryStore
	log *zap.Logger
}

// New assembles the core. A non-empty DATABASE_URL selects the Postgres session
// store; otherwise sessions live in process memory. creds may be nil, in which
// case App.Auth is nil and the caller wires its own orchestration.
func New(ctx context.Context, cfg *config.Config, creds service.CredentialStore, log *zap.Logger) (*App, error) {
	keys, err := kms.NewKeyring(cfg.MasterKeys, cfg.MasterKeyID)
	if err != nil {
		return nil, fmt.Errorf("app: keyring: %w", err)
	}
	cache := keycache.New(keys, log,
		keycache.WithTTL(cfg.DataKeyCacheTTL),
		keycache.WithSweepInterval(cfg.DataKeySweepInterval),
	)
	tokens, err := token.NewService(token.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.TokenIssuer,
		Audience:      cfg.TokenAudience,
	})
	if err != nil {
		return nil, fmt.Errorf("app: tokens: %w", err)
	}

	a := &App{
		Config:   cfg,
		Keys:     keys,
		KeyCache: cache,
		Fields:   fieldcrypt.New(keys, cache),
		Hasher:   password.NewHasher(cfg.BcryptCost, log),
		Tokens:   tokens,
		MFA:      mfa.New(mfa.WithRequiredRoles(cfg.MFARequiredRoles)),
		log:      log,
	}

	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("app: session store: %w", err)
		}
		a.db = db
		a.Sessions = postgres.NewSessionRepo(db, cfg.SessionTTL)
		log.Info("session store: postgres")
	} else {
		a.mem = session.NewMemoryStore(log,
			session.WithTTL(cfg.SessionTTL),
			session.WithSweepInterval(cfg.SessionSweepInterval),
		)
		a.Sessions = a.mem
		log.Info("session store: memory")
	}

	if creds != nil {
		a.Auth = service.NewAuthService(creds, a.Hasher, a.Tokens, a.Sessions, a.MFA, log)
	}
	return a, nil
}

// Start launches the background sweeps of the cache and, when in use, the
// in-memory session store.
func (a *App) Start() {
	a.KeyCache.Start()
	if a.mem != nil {
		a.mem.Start()
	}
}

// Close stops the background sweeps and releases the database pool.
func (a *App) Close() {
	a.KeyCache.Stop()
	if a.mem != nil {
		a.mem.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// Package service contains the application service tying credentials, tokens,
// sessions, and MFA into the platform's authentication flow.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/medisafe/vaultcore/internal/errs"
	"github.com/medisafe/vaultcore/internal/mfa"
	"github.com/medisafe/vaultcore/internal/model"
	"github.com/medisafe/vaultcore/internal/password"
	"github.com/medisafe/vaultcore/internal/session"
	"github.com/medisafe/vaultcore/internal/token"
)

// CredentialStore is the platform-owned persistence of account credentials.
// Implementations live outside this core.
type CredentialStore interface {
	// GetByUsername returns the stored credential or errs.ErrNotFound.
	GetByUsername(ctx context.Context, username string) (*model.Credential, error)
	// UpdatePasswordHash replaces the stored hash after a lazy cost upgrade.
	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, hash string) error
}

// AuthService orchestrates login, token refresh, request verification, and
// logout.
type AuthService struct {
	creds    CredentialStore
	hasher   *password.Hasher
	tokens   *token.Service
	sessions session.Store
	mfa      *mfa.Service
	log      *zap.Logger
}

// NewAuthService constructs an AuthService with required dependencies.
func NewAuthService(creds CredentialStore, hasher *password.Hasher, tokens *token.Service, sessions session.Store, mfaSvc *mfa.Service, log *zap.Logger) *AuthService {
	return &AuthService{creds: creds, hasher: hasher, tokens: tokens, sessions: sessions, mfa: mfaSvc, log: log}
}

// dummyCompareHash is bcrypt("password") at cost 10, the compare target for
// lookups that found no credential. It can never grant access.
const dummyCompareHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// LoginInput carries a login attempt.
type LoginInput struct {
	Username  string
	Password  string
	TOTPCode  string // or a backup code when the authenticator is unavailable
	IPAddress string
	UserAgent string
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Tokens  model.TokenPair
	Session *model.Session
}

// Login authenticates a user, lazily upgrades a below-target password hash,
// applies the MFA role policy, and issues the token pair plus session.
// All credential failures read as ErrUnauthorized; user existence is never
// leaked.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if in.Username == "" || in.Password == "" {
		return nil, errs.ErrUnauthorized
	}

	cred, err := s.creds.GetByUsername(ctx, in.Username)
	if err != nil {
		// Unknown usernames must cost a full bcrypt compare, the same as a
		// wrong password; the result is discarded.
		s.hasher.ComparePassword(in.Password, dummyCompareHash)
		return nil, errs.ErrUnauthorized
	}
	if !s.hasher.ComparePassword(in.Password, cred.PasswordHash) {
		return nil, errs.ErrUnauthorized
	}

	// Lazy rehash: the candidate just verified, so a below-target stored hash
	// is upgraded in place. Best effort; a storage failure must not block login.
	if s.hasher.NeedsRehash(cred.PasswordHash) {
		if newHash, rehashErr := s.hasher.Rehash(in.Password); rehashErr == nil {
			if updErr := s.creds.UpdatePasswordHash(ctx, cred.UserID, newHash); updErr != nil {
				s.log.Warn("password rehash not persisted", zap.Error(updErr))
			}
		} else {
			s.log.Warn("password rehash failed", zap.Error(rehashErr))
		}
	}

	mfaVerified, err := s.checkMFA(cred, in.TOTPCode)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(cred.UserID.String(), cred.Role, cred.PharmacyScope)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Create(ctx, session.NewSession{
		UserID:        cred.UserID,
		Role:          cred.Role,
		PharmacyScope: cred.PharmacyScope,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		MFAVerified:   mfaVerified,
	})
	if err != nil {
		return nil, err
	}

	return &LoginResult{Tokens: pair, Session: sess}, nil
}

// checkMFA applies the role policy: once enrolled, a user presenting no code
// or a bad code is refused when their role requires MFA. Users pending
// enrollment proceed unverified; the platform redirects them to MFA setup.
func (s *AuthService) checkMFA(cred *model.Credential, code string) (bool, error) {
	required := s.mfa.IsMFARequiredForRole(cred.Role)
	if !cred.MFAEnabled {
		return false, nil
	}
	if code == "" {
		if required {
			return false, errs.ErrMFARequired
		}
		return false, nil
	}
	if res := s.mfa.VerifyTOTP(cred.TOTPSecret, code); res.IsValid {
		return true, nil
	}
	if ok, _ := s.mfa.VerifyBackupCode(cred.BackupCodes, code); ok {
		return true, nil
	}
	return false, errs.ErrMFARequired
}

// Refresh exchanges a valid refresh token for a fresh pair.
func (s *AuthService) Refresh(_ context.Context, refreshToken string) (model.TokenPair, error) {
	return s.tokens.Refresh(refreshToken)
}

// VerifyRequest validates the Authorization header, cross-checks the session,
// and bumps session activity. Returns the verified claims and the refreshed
// session view.
func (s *AuthService) VerifyRequest(ctx context.Context, authorizationHeader, sessionID string, act session.Activity) (*token.Claims, *model.Session, error) {
	raw, ok := token.ExtractFromAuthorizationHeader(authorizationHeader)
	if !ok {
		return nil, nil, errs.ErrTokenMalformed
	}
	claims, err := s.tokens.VerifyAccessToken(raw)
	if err != nil {
		return nil, nil, err
	}

	sess, err := s.sessions.UpdateActivity(ctx, sessionID, act)
	if err != nil {
		return nil, nil, err
	}
	if err := session.Validate(sess, time.Now()); err != nil {
		return nil, nil, err
	}
	if sess.UserID.String() != claims.Subject {
		return nil, nil, errs.ErrUnauthorized
	}
	return claims, sess, nil
}

// Logout destroys one session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) (bool, error) {
	return s.sessions.Destroy(ctx, sessionID)
}

// LogoutEverywhere destroys every session of the user, for password changes
// and incident response.
func (s *AuthService) LogoutEverywhere(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.sessions.DestroyAllForUser(ctx, userID)
}

// IsNotFound reports whether the error is the credential-store absence signal.
func IsNotFound(err error) bool { return errors.Is(err, errs.ErrNotFound) }

// Package token issues and verifies the stateless bearer tokens of the
// platform: short-lived access tokens and long-lived refresh tokens, signed
// with distinct secrets so neither can stand in for the other.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medisafe/vaultcore/internal/errs"
	"github.com/medisafe/vaultcore/internal/model"
)

// Token types embedded in the claims; verification rejects a token presented
// as the wrong type.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Reference policy TTLs.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the validated claim set carried by both token types. TokenType is
// required; a token without it is malformed, not merely untyped.
type Claims struct {
	Role        string `json:"role"`
	TenantScope string `json:"tenant_scope,omitempty"`
	TokenType   string `json:"token_type"`
	jwt.RegisteredClaims
}

// Config collects the signing material and claim policy.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration // zero selects the default
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
}

// Service signs and verifies token pairs. Verification is pure and safe for
// concurrent use.
type Service struct {
	cfg Config
	now func() time.Time
}

// NewService validates the configuration and constructs a Service. The access
// and refresh secrets must both be set and must differ.
func NewService(cfg Config) (*Service, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("token: both signing secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &Service{cfg: cfg, now: time.Now}, nil
}

// WithClock injects the time source used for issuance and verification, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IssueAccessToken signs a short-lived access token.
func (s *Service) IssueAccessToken(subject, role, tenantScope string) (string, time.Time, error) {
	return s.issue(subject, role, tenantScope, TypeAccess, s.cfg.AccessSecret, s.cfg.AccessTTL)
}

// IssueRefreshToken signs a long-lived refresh token.
func (s *Service) IssueRefreshToken(subject, role, tenantScope string) (string, time.Time, error) {
	return s.issue(subject, role, tenantScope, TypeRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
}

// IssuePair signs a matched access/refresh pair for one subject.
func (s *Service) IssuePair(subject, role, tenantScope string) (model.TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(subject, role, tenantScope)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(subject, role, tenantScope)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccessToken validates an access token and returns its claims.
func (s *Service) VerifyAccessToken(tok string) (*Claims, error) {
	return s.verify(tok, TypeAccess, s.cfg.AccessSecret, s.cfg.RefreshSecret)
}

// VerifyRefreshToken validates a refresh token and returns its claims.
func (s *Service) VerifyRefreshToken(tok string) (*Claims, error) {
	return s.verify(tok, TypeRefresh, s.cfg.RefreshSecret, s.cfg.AccessSecret)
}

// Refresh verifies a refresh token and issues a fresh pair. The old refresh
// token is superseded but not revoked server-side; it stays valid until its
// natural expiry.
func (s *Service) Refresh(refreshToken string) (model.TokenPair, error) {
	claims, err := s.VerifyRefreshToken(refreshToken)
	if err != nil {
		return model.TokenPair{}, err
	}
	return s.IssuePair(claims.Subject, claims.Role, claims.TenantScope)
}

func (s *Service) issue(subject, role, tenantScope, tokenType string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		Role:        role,
		TenantScope: tenantScope,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, exp, nil
}

// verify parses with the expected secret. A signature failure is re-checked
// against the other secret: a token that verifies there but carries the other
// type is a wrong-type presentation, which callers must be able to tell apart
// from a forged signature. An expired token still counts as verified for this
// purpose; its signature checked out under the other secret.
func (s *Service) verify(tok, wantType string, secret, otherSecret []byte) (*Claims, error) {
	claims, err := s.parse(tok, secret)
	if err != nil {
		if errors.Is(err, errs.ErrTokenInvalidSignature) {
			other, otherErr := s.parse(tok, otherSecret)
			if (otherErr == nil || errors.Is(otherErr, errs.ErrTokenExpired)) && other != nil && other.TokenType != wantType {
				return nil, errs.ErrTokenWrongType
			}
		}
		return nil, err
	}
	if claims.TokenType == "" {
		return nil, fmt.Errorf("%w: missing token type", errs.ErrTokenMalformed)
	}
	if claims.TokenType != wantType {
		return nil, errs.ErrTokenWrongType
	}
	return claims, nil
}

func (s *Service) parse(tok string, secret []byte) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	if s.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.cfg.Audience))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(tok, &claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		opts...,
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			// Claims were decoded and the signature held; only the lifetime
			// check failed. Returned so verify can classify the token type.
			return &claims, errs.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, errs.ErrTokenInvalidSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errs.ErrTokenMalformed
		default:
			return nil, fmt.Errorf("%w: %w", errs.ErrTokenMalformed, err)
		}
	}
	return &claims, nil
}

// ExtractFromAuthorizationHeader parses a strict, case-sensitive
// "Bearer <token>" header value.
func ExtractFromAuthorizationHeader(header string) (string, bool) {
	tok, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tok == "" {
		return "", false
	}
	return tok, true
}

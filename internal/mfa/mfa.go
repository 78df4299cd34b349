// Package mfa implements TOTP enrollment and verification plus single-use
// backup codes. Consumption of a backup code is returned to the caller, who
// owns persisting the reduced set.
package mfa

import (
	"bytes"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/medisafe/vaultcore/internal/errs"
	"github.com/medisafe/vaultcore/internal/model"
)

// Reference policy.
const (
	DefaultIssuer          = "MediSafe"
	DefaultBackupCodeCount = 10
	backupCodeBytes        = 4 // 8 hex chars per code
	qrSizePx               = 200
)

// Roles gated by MFA in the reference policy.
var defaultRequiredRoles = []string{"pharmacist", "doctor"}

// Service implements TOTP and backup-code verification.
type Service struct {
	issuer        string
	requiredRoles map[string]struct{}
	codeCount     int
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIssuer overrides the otpauth issuer shown in authenticator apps.
func WithIssuer(issuer string) Option { return func(s *Service) { s.issuer = issuer } }

// WithRequiredRoles overrides the MFA role policy.
func WithRequiredRoles(roles []string) Option {
	return func(s *Service) {
		s.requiredRoles = make(map[string]struct{}, len(roles))
		for _, r := range roles {
			s.requiredRoles[strings.ToLower(r)] = struct{}{}
		}
	}
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New constructs an MFA service with the reference policy.
func New(opts ...Option) *Service {
	s := &Service{
		issuer:    DefaultIssuer,
		codeCount: DefaultBackupCodeCount,
		now:       time.Now,
	}
	WithRequiredRoles(defaultRequiredRoles)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateSecret produces a fresh TOTP seed, its provisioning QR code as a PNG
// data URL, and a set of single-use backup codes. The enrollment is not active
// until CompleteEnrollment verifies a live code against the secret.
func (s *Service) GenerateSecret(userEmail, userName string) (*model.MFAEnrollment, error) {
	account := userEmail
	if userName != "" {
		account = fmt.Sprintf("%s (%s)", userName, userEmail)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	img, err := key.Image(qrSizePx, qrSizePx)
	if err != nil {
		return nil, fmt.Errorf("render provisioning qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode provisioning qr: %w", err)
	}

	codes, err := generateBackupCodes(s.codeCount)
	if err != nil {
		return nil, err
	}

	return &model.MFAEnrollment{
		Secret:        key.Secret(),
		QRCodeDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		BackupCodes:   codes,
	}, nil
}

// CompleteEnrollment verifies a live code against a freshly generated secret,
// proving the user configured their authenticator before the secret is
// activated.
func (s *Service) CompleteEnrollment(secret, code string) error {
	if res := s.VerifyTOTP(secret, code); !res.IsValid {
		return fmt.Errorf("%w: enrollment code did not verify", errs.ErrMFARequired)
	}
	return nil
}

// VerifyResult reports a code check.
type VerifyResult struct {
	IsValid bool
	Message string
}

// VerifyTOTP checks a candidate code against the secret, accepting the current
// and adjacent 30-second steps to absorb clock drift.
func (s *Service) VerifyTOTP(secret, candidate string) VerifyResult {
	candidate = strings.TrimSpace(candidate)
	if secret == "" || candidate == "" {
		return VerifyResult{IsValid: false, Message: "code required"}
	}
	ok, err := totp.ValidateCustom(candidate, secret, s.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !ok {
		return VerifyResult{IsValid: false, Message: "invalid or expired code"}
	}
	return VerifyResult{IsValid: true}
}

// VerifyBackupCode checks the candidate against the stored set. On success the
// matched code is absent from the returned remaining set; persisting that set
// is the caller's responsibility, and only that persistence makes the
// consumption stick.
func (s *Service) VerifyBackupCode(codes []string, candidate string) (bool, []string) {
	candidate = strings.ToUpper(strings.TrimSpace(candidate))
	matched := -1
	for i, code := range codes {
		if subtle.ConstantTimeCompare([]byte(code), []byte(candidate)) == 1 {
			matched = i
		}
	}
	if matched < 0 {
		return false, codes
	}
	remaining := make([]string, 0, len(codes)-1)
	remaining = append(remaining, codes[:matched]...)
	remaining = append(remaining, codes[matched+1:]...)
	return true, remaining
}

// IsMFARequiredForRole applies the role policy gate.
func (s *Service) IsMFARequiredForRole(role string) bool {
	_, ok := s.requiredRoles[strings.ToLower(role)]
	return ok
}

func generateBackupCodes(n int) ([]string, error) {
	codes := make([]string, n)
	for i := range codes {
		b := make([]byte, backupCodeBytes)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		codes[i] = strings.ToUpper(hex.EncodeToString(b))
	}
	return codes, nil
}

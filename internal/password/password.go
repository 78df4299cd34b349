// Package password implements credential policy validation, adaptive hashing
// with bcrypt, constant-time verification, and rehash detection.
package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/medisafe/vaultcore/internal/errs"
)

// Reference policy.
const (
	MinLength   = 12
	MaxLength   = 128
	DefaultCost = 10
)

// weakSubstrings is matched case-insensitively anywhere in the candidate.
var weakSubstrings = []string{
	"password",
	"passwort",
	"12345678",
	"qwerty",
	"qwertz",
	"admin",
	"letmein",
	"welcome",
	"iloveyou",
	"medisafe",
}

// Hasher applies the credential policy and the adaptive hash at a target cost.
// The cost is monotonically non-decreasing across the system's lifetime;
// NeedsRehash flags stored hashes below the current target.
type Hasher struct {
	cost int
	log  *zap.Logger
}

// NewHasher constructs a Hasher. A non-positive cost selects the default.
func NewHasher(cost int, log *zap.Logger) *Hasher {
	if cost <= 0 {
		cost = DefaultCost
	}
	return &Hasher{cost: cost, log: log}
}

// ValidationResult accumulates every violated policy rule.
type ValidationResult struct {
	IsValid bool
	Errors  []string
}

// PolicyError carries the accumulated validation errors and unwraps to
// ErrInvalidPassword.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return "invalid password: " + strings.Join(e.Violations, "; ")
}

func (e *PolicyError) Unwrap() error { return errs.ErrInvalidPassword }

// ValidatePassword checks the candidate against the full policy, accumulating
// all violations rather than stopping at the first.
func (h *Hasher) ValidatePassword(candidate string) ValidationResult {
	var violations []string

	if len(candidate) < MinLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters", MinLength))
	}
	if len(candidate) > MaxLength {
		violations = append(violations, fmt.Sprintf("must be at most %d characters", MaxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}
	if !hasUpper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "must contain a digit")
	}
	if !hasSpecial {
		violations = append(violations, "must contain a special character")
	}

	lowered := strings.ToLower(candidate)
	for _, weak := range weakSubstrings {
		if strings.Contains(lowered, weak) {
			violations = append(violations, fmt.Sprintf("must not contain %q", weak))
		}
	}

	return ValidationResult{IsValid: len(violations) == 0, Errors: violations}
}

// HashPassword validates the candidate and returns its bcrypt hash at the
// target cost.
func (h *Hasher) HashPassword(candidate string) (string, error) {
	if res := h.ValidatePassword(candidate); !res.IsValid {
		return "", &PolicyError{Violations: res.Errors}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(candidate), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrHashingFailed, err)
	}
	return string(hash), nil
}

// Rehash hashes a candidate that has already authenticated, bypassing policy
// validation. Used for lazy cost upgrades on login: the stored password may
// predate the current policy.
func (h *Hasher) Rehash(candidate string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(candidate), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrHashingFailed, err)
	}
	return string(hash), nil
}

// ComparePassword reports whether the candidate matches the stored hash. It
// never returns an error: empty input, mismatch, and internal failure all read
// as false, so the login path cannot distinguish them synchronously. Internal
// failures are logged out-of-band only.
func (h *Hasher) ComparePassword(candidate, hash string) bool {
	if candidate == "" || hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate))
	if err == nil {
		return true
	}
	if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		h.log.Error("password comparison failed", zap.Error(err))
	}
	return false
}

// NeedsRehash reports whether the stored hash was produced below the current
// target cost. Unparseable hashes report true, so a corrupt hash is replaced
// on the next successful login.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost
}

package password

import (
	"errors"
	"strings"
	"testing"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/medisafe/vaultcore/internal/errs"
)

func newTestHasher() *Hasher {
	// Cost 4 keeps tests fast; policy behavior is cost-independent.
	return NewHasher(bcrypt.MinCost, zap.NewNop())
}

func TestValidatePassword_Policy(t *testing.T) {
	t.Parallel()
	h := newTestHasher()

	tests := []struct {
		name      string
		candidate string
		valid     bool
		wantIn    string // substring expected among the errors
	}{
		{"too short", "Short1!", false, "at least 12"},
		{"valid all classes", "ValidPass123!", true, ""},
		{"missing upper", "validpass123!", false, "uppercase"},
		{"missing digit", "ValidPassword!", false, "digit"},
		{"missing special", "ValidPass1234", false, "special"},
		{"weak substring", "MyPassword123!", false, `"password"`},
		{"weak substring case-insensitive", "MyPASSWORD123!", false, `"password"`},
		{"too long", strings.Repeat("Aa1!", 40), false, "at most 128"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.ValidatePassword(tt.candidate)
			if res.IsValid != tt.valid {
				t.Fatalf("IsValid=%v, want %v (errors: %v)", res.IsValid, tt.valid, res.Errors)
			}
			if tt.wantIn == "" {
				return
			}
			found := false
			for _, e := range res.Errors {
				if strings.Contains(e, tt.wantIn) {
					found = true
				}
			}
			if !found {
				t.Fatalf("errors %v do not mention %q", res.Errors, tt.wantIn)
			}
		})
	}
}

func TestValidatePassword_AccumulatesAllViolations(t *testing.T) {
	t.Parallel()
	h := newTestHasher()

	// Short, single class, no digit, no special: several rules violated at once.
	res := h.ValidatePassword("abc")
	if res.IsValid {
		t.Fatalf("expected invalid")
	}
	if len(res.Errors) < 3 {
		t.Fatalf("expected accumulated violations, got %v", res.Errors)
	}
}

func TestHashAndCompare(t *testing.T) {
	t.Parallel()
	h := newTestHasher()

	const pw = "ValidPass123!"
	hash, err := h.HashPassword(pw)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Fatalf("hash is not bcrypt canonical encoding: %q", hash)
	}

	if !h.ComparePassword(pw, hash) {
		t.Fatalf("ComparePassword: correct password rejected")
	}
	if h.ComparePassword("wrong", hash) {
		t.Fatalf("ComparePassword: wrong password accepted")
	}
	if h.ComparePassword("", hash) {
		t.Fatalf("ComparePassword: empty candidate accepted")
	}
	if h.ComparePassword(pw, "") {
		t.Fatalf("ComparePassword: empty hash accepted")
	}
	// Garbage hash must read as false, never error.
	if h.ComparePassword(pw, "not-a-bcrypt-hash") {
		t.Fatalf("ComparePassword: garbage hash accepted")
	}
}

func TestHashPassword_RejectsPolicyViolation(t *testing.T) {
	t.Parallel()
	h := newTestHasher()

	_, err := h.HashPassword("short")
	if !errors.Is(err, errs.ErrInvalidPassword) {
		t.Fatalf("want ErrInvalidPassword, got %v", err)
	}
	var pe *PolicyError
	if !errors.As(err, &pe) || len(pe.Violations) == 0 {
		t.Fatalf("want PolicyError carrying violations, got %v", err)
	}
}

func TestNeedsRehash(t *testing.T) {
	t.Parallel()
	h := NewHasher(10, zap.NewNop())

	low, err := bcrypt.GenerateFromPassword([]byte("ValidPass123!"), 8)
	if err != nil {
		t.Fatalf("bcrypt cost 8: %v", err)
	}
	if !h.NeedsRehash(string(low)) {
		t.Fatalf("cost-8 hash must need rehash at target 10")
	}

	at, err := bcrypt.GenerateFromPassword([]byte("ValidPass123!"), 10)
	if err != nil {
		t.Fatalf("bcrypt cost 10: %v", err)
	}
	if h.NeedsRehash(string(at)) {
		t.Fatalf("cost-10 hash must not need rehash at target 10")
	}

	// Fail-safe: unparseable hash is flagged for replacement.
	if !h.NeedsRehash("garbage") {
		t.Fatalf("unparseable hash must report needs-rehash")
	}
}

func TestRehash_BypassesPolicy(t *testing.T) {
	t.Parallel()
	h := newTestHasher()

	// A legacy password failing the current policy can still be cost-upgraded.
	hash, err := h.Rehash("legacy")
	if err != nil {
		t.Fatalf("Rehash: %v", err)
	}
	if !h.ComparePassword("legacy", hash) {
		t.Fatalf("rehashed password does not verify")
	}
}

func TestEstimateStrength(t *testing.T) {
	t.Parallel()
	h := newTestHasher()

	if got := h.EstimateStrength(""); got.Score != 0 {
		t.Fatalf("empty password score=%d, want 0", got.Score)
	}
	if got := h.EstimateStrength("aaaa"); got.Score > 1 {
		t.Fatalf("trivial password score=%d, want <=1", got.Score)
	}
	got := h.EstimateStrength("Tr0ub4dor&3Xk9!mQz")
	if got.Score != 4 {
		t.Fatalf("strong password score=%d, want 4 (%s)", got.Score, got.Description)
	}
	if got.Description != "very strong" {
		t.Fatalf("description=%q", got.Description)
	}
}

func TestGenerateSecurePassword(t *testing.T) {
	t.Parallel()
	h := newTestHasher()

	for _, length := range []int{16, 20, 32} {
		pw, err := h.GenerateSecurePassword(length)
		if err != nil {
			t.Fatalf("GenerateSecurePassword(%d): %v", length, err)
		}
		if len(pw) != length {
			t.Fatalf("len=%d, want %d", len(pw), length)
		}
		var hasUpper, hasLower, hasDigit, hasSpecial bool
		for _, r := range pw {
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
		if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
			t.Fatalf("generated password %q missing a required class", pw)
		}
		if res := h.ValidatePassword(pw); !res.IsValid {
			t.Fatalf("generated password fails policy: %v", res.Errors)
		}
	}

	a, _ := h.GenerateSecurePassword(16)
	b, _ := h.GenerateSecurePassword(16)
	if a == b {
		t.Fatalf("two generated passwords are identical")
	}
}

package mfa

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
)

func TestGenerateSecret(t *testing.T) {
	t.Parallel()
	s := New()

	enr, err := s.GenerateSecret("anna@example.ch", "Anna Muster")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	if enr.Secret == "" {
		t.Fatalf("empty secret")
	}
	if !strings.HasPrefix(enr.QRCodeDataURL, "data:image/png;base64,") {
		t.Fatalf("QR code is not a PNG data URL: %.40s", enr.QRCodeDataURL)
	}
	if len(enr.BackupCodes) != DefaultBackupCodeCount {
		t.Fatalf("got %d backup codes, want %d", len(enr.BackupCodes), DefaultBackupCodeCount)
	}
	seen := map[string]bool{}
	for _, code := range enr.BackupCodes {
		if len(code) != 8 {
			t.Fatalf("backup code %q is not 8 chars", code)
		}
		if seen[code] {
			t.Fatalf("duplicate backup code %q", code)
		}
		seen[code] = true
	}

	other, err := s.GenerateSecret("anna@example.ch", "Anna Muster")
	if err != nil {
		t.Fatalf("GenerateSecret(2): %v", err)
	}
	if other.Secret == enr.Secret {
		t.Fatalf("two enrollments produced the same secret")
	}
}

func TestVerifyTOTP_WindowTolerance(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 4, 1, 12, 0, 15, 0, time.UTC)
	s := New(WithClock(func() time.Time { return now }))

	enr, err := s.GenerateSecret("anna@example.ch", "")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}

	current, err := totp.GenerateCode(enr.Secret, now)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if res := s.VerifyTOTP(enr.Secret, current); !res.IsValid {
		t.Fatalf("current code rejected: %s", res.Message)
	}

	// One step behind is inside the skew window.
	previous, err := totp.GenerateCode(enr.Secret, now.Add(-30*time.Second))
	if err != nil {
		t.Fatalf("GenerateCode(prev): %v", err)
	}
	if res := s.VerifyTOTP(enr.Secret, previous); !res.IsValid {
		t.Fatalf("adjacent-step code rejected: %s", res.Message)
	}

	// Two steps out is not.
	stale, err := totp.GenerateCode(enr.Secret, now.Add(-90*time.Second))
	if err != nil {
		t.Fatalf("GenerateCode(stale): %v", err)
	}
	if res := s.VerifyTOTP(enr.Secret, stale); res.IsValid {
		t.Fatalf("code two steps out accepted")
	}

	if res := s.VerifyTOTP(enr.Secret, "000000"); res.IsValid {
		t.Fatalf("wrong code accepted")
	}
	if res := s.VerifyTOTP(enr.Secret, ""); res.IsValid || res.Message == "" {
		t.Fatalf("empty code must be rejected with a message")
	}
}

func TestCompleteEnrollment(t *testing.T) {
	t.Parallel()
	now := time.Now()
	s := New(WithClock(func() time.Time { return now }))

	enr, err := s.GenerateSecret("doc@example.ch", "")
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	code, err := totp.GenerateCode(enr.Secret, now)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if err := s.CompleteEnrollment(enr.Secret, code); err != nil {
		t.Fatalf("CompleteEnrollment: %v", err)
	}
	if err := s.CompleteEnrollment(enr.Secret, "123456"); err == nil {
		t.Fatalf("CompleteEnrollment accepted a wrong code")
	}
}

func TestVerifyBackupCode_SingleUse(t *testing.T) {
	t.Parallel()
	s := New()

	codes := []string{"AABBCCDD", "11223344", "DEADBEEF"}
	ok, remaining := s.VerifyBackupCode(codes, "11223344")
	if !ok {
		t.Fatalf("valid backup code rejected")
	}
	if len(remaining) != 2 {
		t.Fatalf("remaining=%v, want matched code removed", remaining)
	}
	for _, c := range remaining {
		if c == "11223344" {
			t.Fatalf("consumed code still present in remaining set")
		}
	}

	// Against the un-persisted original set the code still verifies: the core
	// cannot enforce consumption, only the caller's persistence can.
	if ok, _ := s.VerifyBackupCode(codes, "11223344"); !ok {
		t.Fatalf("re-verification against un-updated set must succeed")
	}
	// Once the caller persists the remaining set, the replay fails.
	if ok, _ := s.VerifyBackupCode(remaining, "11223344"); ok {
		t.Fatalf("code verified twice against the updated set")
	}

	// Lookup is case- and whitespace-tolerant on the candidate.
	if ok, _ := s.VerifyBackupCode(codes, " deadbeef "); !ok {
		t.Fatalf("normalized candidate rejected")
	}

	if ok, remaining := s.VerifyBackupCode(codes, "00000000"); ok || len(remaining) != len(codes) {
		t.Fatalf("unknown code must not consume anything")
	}
	if ok, _ := s.VerifyBackupCode(nil, "AABBCCDD"); ok {
		t.Fatalf("empty set accepted a code")
	}
}

func TestIsMFARequiredForRole(t *testing.T) {
	t.Parallel()
	s := New()

	for role, want := range map[string]bool{
		"pharmacist": true,
		"doctor":     true,
		"Pharmacist": true, // case-insensitive
		"patient":    false,
		"admin":      false,
		"":           false,
	} {
		if got := s.IsMFARequiredForRole(role); got != want {
			t.Fatalf("IsMFARequiredForRole(%q)=%v, want %v", role, got, want)
		}
	}

	custom := New(WithRequiredRoles([]string{"admin"}))
	if !custom.IsMFARequiredForRole("admin") || custom.IsMFARequiredForRole("pharmacist") {
		t.Fatalf("WithRequiredRoles override not applied")
	}
}

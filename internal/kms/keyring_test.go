package kms

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/medisafe/vaultcore/internal/errs"
)

func testRing(t *testing.T) *Keyring {
	t.Helper()
	keys := map[string][]byte{
		"master-1": bytes.Repeat([]byte{0x11}, 32),
		"master-2": bytes.Repeat([]byte{0x22}, 32),
	}
	r, err := NewKeyring(keys, "master-1")
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	return r
}

func TestKeyring_GenerateAndUnwrap(t *testing.T) {
	t.Parallel()
	r := testRing(t)
	ctx := context.Background()

	plain, wrapped, err := r.GenerateDataKey(ctx)
	if err != nil {
		t.Fatalf("GenerateDataKey: %v", err)
	}
	if len(plain) != DataKeyLen {
		t.Fatalf("plaintext key length=%d, want %d", len(plain), DataKeyLen)
	}
	if len(wrapped) == 0 {
		t.Fatalf("empty wrapped key")
	}

	got, err := r.UnwrapDataKey(ctx, wrapped)
	if err != nil {
		t.Fatalf("UnwrapDataKey: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("unwrapped key differs from generated key")
	}

	// Two generations must not reuse key material.
	plain2, wrapped2, err := r.GenerateDataKey(ctx)
	if err != nil {
		t.Fatalf("GenerateDataKey(2): %v", err)
	}
	if bytes.Equal(plain, plain2) || bytes.Equal(wrapped, wrapped2) {
		t.Fatalf("two generated data keys are identical")
	}
}

func TestKeyring_UnwrapAcrossRotation(t *testing.T) {
	t.Parallel()
	keys := map[string][]byte{
		"old": bytes.Repeat([]byte{0x33}, 32),
		"new": bytes.Repeat([]byte{0x44}, 32),
	}
	oldRing, err := NewKeyring(keys, "old")
	if err != nil {
		t.Fatalf("NewKeyring(old): %v", err)
	}
	plain, wrapped, err := oldRing.GenerateDataKey(context.Background())
	if err != nil {
		t.Fatalf("GenerateDataKey: %v", err)
	}

	// After rotation "new" is active, but blobs wrapped under "old" still unwrap.
	newRing, err := NewKeyring(keys, "new")
	if err != nil {
		t.Fatalf("NewKeyring(new): %v", err)
	}
	got, err := newRing.UnwrapDataKey(context.Background(), wrapped)
	if err != nil {
		t.Fatalf("UnwrapDataKey after rotation: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("unwrap after rotation returned wrong key")
	}
}

func TestKeyring_UnwrapErrors(t *testing.T) {
	t.Parallel()
	r := testRing(t)
	ctx := context.Background()

	if _, err := r.UnwrapDataKey(ctx, nil); !errors.Is(err, errs.ErrKeyProviderResponseInvalid) {
		t.Fatalf("want ErrKeyProviderResponseInvalid for empty blob, got %v", err)
	}
	if _, err := r.UnwrapDataKey(ctx, []byte{5, 'a'}); !errors.Is(err, errs.ErrKeyProviderResponseInvalid) {
		t.Fatalf("want ErrKeyProviderResponseInvalid for truncated blob, got %v", err)
	}

	// Unknown master key id.
	_, wrapped, err := r.GenerateDataKey(ctx)
	if err != nil {
		t.Fatalf("GenerateDataKey: %v", err)
	}
	single, err := NewKeyring(map[string][]byte{"other": bytes.Repeat([]byte{0x55}, 32)}, "other")
	if err != nil {
		t.Fatalf("NewKeyring(single): %v", err)
	}
	if _, err := single.UnwrapDataKey(ctx, wrapped); !errors.Is(err, errs.ErrKeyProviderUnavailable) {
		t.Fatalf("want ErrKeyProviderUnavailable for unknown key id, got %v", err)
	}

	// Corrupted sealed region fails authentication.
	bad := append([]byte(nil), wrapped...)
	bad[len(bad)-1] ^= 0x01
	if _, err := r.UnwrapDataKey(ctx, bad); !errors.Is(err, errs.ErrKeyProviderResponseInvalid) {
		t.Fatalf("want ErrKeyProviderResponseInvalid for tampered blob, got %v", err)
	}
}

func TestNewKeyring_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewKeyring(nil, "x"); !errors.Is(err, errs.ErrKeyProviderUnavailable) {
		t.Fatalf("want error on empty ring, got %v", err)
	}
	if _, err := NewKeyring(map[string][]byte{"a": make([]byte, 16)}, "a"); !errors.Is(err, errs.ErrKeyProviderResponseInvalid) {
		t.Fatalf("want error on short master key, got %v", err)
	}
	if _, err := NewKeyring(map[string][]byte{"a": make([]byte, 32)}, "missing"); !errors.Is(err, errs.ErrKeyProviderUnavailable) {
		t.Fatalf("want error on unknown active id, got %v", err)
	}
}

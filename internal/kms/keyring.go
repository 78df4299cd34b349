package kms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/medisafe/vaultcore/internal/errs"
)

// Wrapped-blob layout: [1 byte key-id length][key id][12-byte nonce][sealed key].
// The key id travels inside the blob so unwrap is self-routing across master-key
// rotations: old blobs name the master key that wrapped them.
const wrapNonceLen = 12

// Keyring is a Provider backed by a set of named 256-bit master keys, one of
// which is active for wrapping new data keys. Master keys are sourced from the
// environment at process start and never leave this package.
type Keyring struct {
	keys     map[string][]byte
	activeID string
}

// NewKeyring constructs a keyring provider. The active id must name a key in
// the ring and every key must be 32 bytes.
func NewKeyring(keys map[string][]byte, activeID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: empty keyring", errs.ErrKeyProviderUnavailable)
	}
	if _, ok := keys[activeID]; !ok {
		return nil, fmt.Errorf("%w: active master key %q not in ring", errs.ErrKeyProviderUnavailable, activeID)
	}
	ring := make(map[string][]byte, len(keys))
	for id, k := range keys {
		if len(k) != DataKeyLen {
			return nil, fmt.Errorf("%w: master key %q has length %d, want %d", errs.ErrKeyProviderResponseInvalid, id, len(k), DataKeyLen)
		}
		if len(id) == 0 || len(id) > 255 {
			return nil, fmt.Errorf("%w: master key id %q out of range", errs.ErrKeyProviderResponseInvalid, id)
		}
		ring[id] = append([]byte(nil), k...)
	}
	return &Keyring{keys: ring, activeID: activeID}, nil
}

// GenerateDataKey returns a fresh random 32-byte key plus its wrapped form
// under the active master key.
func (r *Keyring) GenerateDataKey(_ context.Context) ([]byte, []byte, error) {
	plaintext := make([]byte, DataKeyLen)
	if _, err := rand.Read(plaintext); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errs.ErrKeyProviderUnavailable, err)
	}
	wrapped, err := r.wrap(r.activeID, plaintext)
	if err != nil {
		return nil, nil, err
	}
	return plaintext, wrapped, nil
}

// UnwrapDataKey recovers the plaintext data key using whichever master key the
// blob names.
func (r *Keyring) UnwrapDataKey(_ context.Context, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 2 {
		return nil, fmt.Errorf("%w: wrapped key too short", errs.ErrKeyProviderResponseInvalid)
	}
	idLen := int(wrapped[0])
	if idLen == 0 || len(wrapped) < 1+idLen+wrapNonceLen+1 {
		return nil, fmt.Errorf("%w: wrapped key truncated", errs.ErrKeyProviderResponseInvalid)
	}
	keyID := string(wrapped[1 : 1+idLen])
	master, ok := r.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: master key %q not in ring", errs.ErrKeyProviderUnavailable, keyID)
	}
	nonce := wrapped[1+idLen : 1+idLen+wrapNonceLen]
	sealed := wrapped[1+idLen+wrapNonceLen:]

	aead, err := newGCM(master)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrKeyProviderUnavailable, err)
	}
	plaintext, err := aead.Open(nil, nonce, sealed, []byte(keyID))
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap: %w", errs.ErrKeyProviderResponseInvalid, err)
	}
	if len(plaintext) != DataKeyLen {
		return nil, fmt.Errorf("%w: unwrapped key has length %d", errs.ErrKeyProviderResponseInvalid, len(plaintext))
	}
	return plaintext, nil
}

func (r *Keyring) wrap(keyID string, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(r.keys[keyID])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrKeyProviderUnavailable, err)
	}
	nonce := make([]byte, wrapNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrKeyProviderUnavailable, err)
	}
	out := make([]byte, 0, 1+len(keyID)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, byte(len(keyID)))
	out = append(out, keyID...)
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, []byte(keyID))...)
	return out, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Package fieldcrypt implements envelope encryption of individual PHI field
// values. Every encryption draws a fresh data key from the key provider; the
// wrapped key travels inside the blob so decryption is self-contained given
// access to the master-key service.
package fieldcrypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/medisafe/vaultcore/internal/errs"
	"github.com/medisafe/vaultcore/internal/keycache"
	"github.com/medisafe/vaultcore/internal/kms"
)

// Blob layout, big-endian lengths:
//
//	[4 bytes: wrapped key length][wrapped key][16 bytes: IV][16 bytes: tag][ciphertext]
const (
	ivLen     = 16
	tagLen    = 16
	headerLen = 4
)

// Cipher performs authenticated field encryption and decryption. Fresh data
// keys come straight from the provider; unwrapping on decrypt goes through the
// cache.
type Cipher struct {
	provider kms.Provider
	cache    *keycache.Cache
}

// New constructs a field cipher.
func New(provider kms.Provider, cache *keycache.Cache) *Cipher {
	return &Cipher{provider: provider, cache: cache}
}

// EncryptField envelope-encrypts a single non-empty value and returns the
// framed blob. A brand-new data key is generated per call; wrapped keys are
// never reused across encryptions.
func (c *Cipher) EncryptField(ctx context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, errs.ErrEmptyPlaintext
	}

	key, wrapped, err := c.provider.GenerateDataKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryptionFailed, err)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryptionFailed, err)
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryptionFailed, err)
	}

	// Seal appends the tag after the ciphertext; the frame stores it before.
	sealed := aead.Seal(nil, iv, plaintext, nil)
	ct := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	blob := make([]byte, 0, headerLen+len(wrapped)+ivLen+tagLen+len(ct))
	var hdr [headerLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(wrapped)))
	blob = append(blob, hdr[:]...)
	blob = append(blob, wrapped...)
	blob = append(blob, iv...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)
	return blob, nil
}

// DecryptField parses the frame, obtains the data key through the cache, and
// returns the authenticated plaintext. Tag mismatch and frame corruption are
// indistinguishable: both fail with ErrDecryptionFailed and no partial output.
func (c *Cipher) DecryptField(ctx context.Context, blob []byte) ([]byte, error) {
	if len(blob) < headerLen+1+ivLen+tagLen {
		return nil, errs.ErrInvalidCiphertext
	}
	wrappedLen := int(binary.BigEndian.Uint32(blob[:headerLen]))
	if wrappedLen == 0 || len(blob) < headerLen+wrappedLen+ivLen+tagLen {
		return nil, errs.ErrInvalidCiphertext
	}

	wrapped := blob[headerLen : headerLen+wrappedLen]
	iv := blob[headerLen+wrappedLen : headerLen+wrappedLen+ivLen]
	tag := blob[headerLen+wrappedLen+ivLen : headerLen+wrappedLen+ivLen+tagLen]
	ct := blob[headerLen+wrappedLen+ivLen+tagLen:]

	key, err := c.cache.GetOrUnwrap(ctx, wrapped)
	if err != nil {
		return nil, err
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrDecryptionFailed, err)
	}
	sealed := make([]byte, 0, len(ct)+tagLen)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, errs.ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptFields encrypts every non-empty value in the map independently, each
// under its own data key. Empty values are skipped, not errored.
func (c *Cipher) EncryptFields(ctx context.Context, fields map[string]string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(fields))
	for name, value := range fields {
		if value == "" {
			continue
		}
		blob, err := c.EncryptField(ctx, []byte(value))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = blob
	}
	return out, nil
}

// DecryptFields decrypts every non-empty blob in the map independently.
func (c *Cipher) DecryptFields(ctx context.Context, fields map[string][]byte) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for name, blob := range fields {
		if len(blob) == 0 {
			continue
		}
		plaintext, err := c.DecryptField(ctx, blob)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = string(plaintext)
	}
	return out, nil
}

// newGCM builds AES-256-GCM with the 16-byte IV the wire format mandates.
func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivLen)
}

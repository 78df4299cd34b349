// Package kms wraps the external master-key service used to generate and
// unwrap per-field data keys. It is a pure adapter over the trust boundary;
// caching lives elsewhere.
package kms

import "context"

// DataKeyLen is the length of plaintext data keys (AES-256).
const DataKeyLen = 32

// Provider generates fresh data keys and unwraps previously wrapped ones.
type Provider interface {
	// GenerateDataKey requests a fresh random symmetric key from the master-key
	// service and returns both the plaintext and the wrapped form.
	GenerateDataKey(ctx context.Context) (plaintext, wrapped []byte, err error)

	// UnwrapDataKey recovers the plaintext data key from its wrapped form.
	UnwrapDataKey(ctx context.Context, wrapped []byte) ([]byte, error)
}

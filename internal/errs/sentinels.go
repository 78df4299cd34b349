// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Key provider boundary.
var (
	// ErrKeyProviderUnavailable indicates the master-key service could not be reached
	// or the referenced master key does not exist.
	ErrKeyProviderUnavailable = errors.New("key provider unavailable")

	// ErrKeyProviderResponseInvalid indicates the master-key service returned key
	// material that is missing or structurally invalid.
	ErrKeyProviderResponseInvalid = errors.New("key provider response invalid")
)

// Field encryption.
var (
	// ErrEmptyPlaintext indicates an attempt to encrypt an empty value.
	ErrEmptyPlaintext = errors.New("empty plaintext")

	// ErrInvalidCiphertext indicates a blob too short or malformed to parse.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")

	// ErrEncryptionFailed wraps any lower-level failure while encrypting a field.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrDecryptionFailed indicates authentication-tag mismatch or a corrupted frame.
	// Never retried; terminal for the blob in question.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Credentials.
var (
	// ErrInvalidPassword indicates the candidate password violates policy.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrHashingFailed wraps a lower-level failure of the adaptive hash.
	ErrHashingFailed = errors.New("hashing failed")
)

// Tokens. Callers react differently per kind: refresh flow on expiry,
// forced re-login on signature/type errors.
var (
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenInvalidSignature = errors.New("token signature invalid")
	ErrTokenWrongType        = errors.New("token wrong type")
	ErrTokenMalformed        = errors.New("token malformed")
)

// Sessions.
var (
	// ErrSessionNotFound indicates no live session exists for the given id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session exists but is past its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// Authentication flow.
var (
	// ErrUnauthorized indicates failed authentication; deliberately coarse so that
	// user existence is not leaked on the login path.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMFARequired indicates the role policy demands a second factor that was
	// not presented or did not verify.
	ErrMFARequired = errors.New("mfa required")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

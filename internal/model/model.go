// Package model defines domain entities used by services and stores.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// TokenPair collects an issued access/refresh token pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time // for diagnostics and client hints
	RefreshExpiresAt time.Time
}

// Session is a server-side session record. The id is the only value handed to
// the client; everything else lives server-side.
type Session struct {
	ID               string // opaque, unguessable
	UserID           uuid.UUID
	Role             string
	PharmacyScope    string // empty when the user is not scoped to a pharmacy
	CreatedAt        time.Time
	LastActivityAt   time.Time
	ExpiresAt        time.Time // sliding window, extended on activity
	IPAddress        string
	UserAgent        string
	MFAVerified      bool
	HINAuthenticated bool
}

// Expired reports whether the session is past its sliding expiry at t.
func (s *Session) Expired(t time.Time) bool {
	return !s.ExpiresAt.After(t)
}

// Credential is the stored authentication material for one user account.
// Persistence is owned by the calling platform; this core only reads and
// lazily upgrades the password hash.
type Credential struct {
	UserID        uuid.UUID
	Username      string
	Role          string
	PharmacyScope string
	PasswordHash  string // bcrypt canonical encoding, cost embedded
	MFAEnabled    bool
	TOTPSecret    string
	BackupCodes   []string
}

// MFAEnrollment is the material produced at TOTP enrollment time. The secret
// must not be activated until a live code has been verified against it.
type MFAEnrollment struct {
	Secret        string
	QRCodeDataURL string
	BackupCodes   []string
}

// Location is a coarse geolocation observation attached to session activity.
type Location struct {
	Latitude  float64
	Longitude float64
}

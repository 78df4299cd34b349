// Package session tracks server-side session records: creation, sliding
// expiry, activity metadata, id rotation, and anomaly heuristics.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/medisafe/vaultcore/internal/errs"
	"github.com/medisafe/vaultcore/internal/model"
)

// Reference policy: 30-minute sliding window, swept every 10 minutes.
const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = 10 * time.Minute
)

// NewSession is the input to Create.
type NewSession struct {
	UserID           uuid.UUID
	Role             string
	PharmacyScope    string
	IPAddress        string
	UserAgent        string
	MFAVerified      bool
	HINAuthenticated bool
}

// Activity is the per-request metadata recorded on UpdateActivity.
type Activity struct {
	IPAddress string
	UserAgent string
}

// Store is the session persistence contract. Lookups return (nil, nil) for
// unknown and expired ids alike; absence is a routine outcome, not an error.
type Store interface {
	// Create allocates a new unguessable session id and stores the record.
	Create(ctx context.Context, in NewSession) (*model.Session, error)
	// Get returns the live session or nil.
	Get(ctx context.Context, id string) (*model.Session, error)
	// UpdateActivity bumps last-activity, extends the sliding expiry, and
	// records the latest client metadata. Returns nil for dead ids.
	UpdateActivity(ctx context.Context, id string, act Activity) (*model.Session, error)
	// Renew rotates the session id, invalidating the old one immediately.
	// Returns the new id, or "" if the session is not live.
	Renew(ctx context.Context, id string) (string, error)
	// Destroy removes the session, reporting whether it existed.
	Destroy(ctx context.Context, id string) (bool, error)
	// DestroyAllForUser removes every session of one user and returns the count.
	DestroyAllForUser(ctx context.Context, userID uuid.UUID) (int, error)
	// CleanupExpired removes expired records and returns the count.
	CleanupExpired(ctx context.Context) (int, error)
}

// Validate classifies a session snapshot at time t. The stores in this module
// collapse expiry into absence, but Store is an interface; an implementation
// that hands back expired records still gets classified correctly here.
func Validate(sess *model.Session, t time.Time) error {
	if sess == nil {
		return errs.ErrSessionNotFound
	}
	if sess.Expired(t) {
		return errs.ErrSessionExpired
	}
	return nil
}

// NewID returns a 256-bit random session id, hex encoded.
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// maxTravelSpeedKMH is the fastest plausible legitimate travel between two
// logins. Commercial flight tops out around 900 km/h.
const maxTravelSpeedKMH = 900.0

// earthRadiusKM for the haversine distance.
const earthRadiusKM = 6371.0

// DetectGeolocationJump reports whether moving between the two observed
// locations within the elapsed time implies impossible travel. This is a
// heuristic signal; callers decide the response (typically forced re-auth),
// it is not a hard block.
func DetectGeolocationJump(prev, cur model.Location, elapsed time.Duration) bool {
	distance := haversineKM(prev, cur)
	if distance < 1 {
		return false
	}
	if elapsed <= 0 {
		return true
	}
	speed := distance / elapsed.Hours()
	return speed > maxTravelSpeedKMH
}

func haversineKM(a, b model.Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

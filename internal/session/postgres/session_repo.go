package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/medisafe/vaultcore/internal/model"
	"github.com/medisafe/vaultcore/internal/session"
)

const sessionColumns = `id, user_id, role, pharmacy_scope, created_at, last_activity_at, expires_at, ip_address, user_agent, mfa_verified, hin_authenticated`

// SessionRepo implements session.Store on PostgreSQL. Expired rows are treated
// as absent on every read path; the periodic cleanup removes them for real.
type SessionRepo struct {
	db  *DB
	ttl time.Duration
	now func() time.Time
}

var _ session.Store = (*SessionRepo)(nil)

// NewSessionRepo constructs a Postgres-backed session store. A non-positive
// ttl selects the default sliding window.
func NewSessionRepo(db *DB, ttl time.Duration) *SessionRepo {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &SessionRepo{db: db, ttl: ttl, now: time.Now}
}

// WithClock injects the time source, for tests.
func (r *SessionRepo) WithClock(now func() time.Time) *SessionRepo {
	r.now = now
	return r
}

// Create inserts a new session row with a fresh id.
func (r *SessionRepo) Create(ctx context.Context, in session.NewSession) (*model.Session, error) {
	id, err := session.NewID()
	if err != nil {
		return nil, err
	}
	now := r.now()
	s := &model.Session{
		ID:               id,
		UserID:           in.UserID,
		Role:             in.Role,
		PharmacyScope:    in.PharmacyScope,
		CreatedAt:        now,
		LastActivityAt:   now,
		ExpiresAt:        now.Add(r.ttl),
		IPAddress:        in.IPAddress,
		UserAgent:        in.UserAgent,
		MFAVerified:      in.MFAVerified,
		HINAuthenticated: in.HINAuthenticated,
	}
	const q = `
INSERT INTO sessions (id, user_id, role, pharmacy_scope, created_at, last_activity_at, expires_at, ip_address, user_agent, mfa_verified, hin_authenticated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.Pool.Exec(ctx, q, s.ID, s.UserID, s.Role, s.PharmacyScope, s.CreatedAt, s.LastActivityAt, s.ExpiresAt, s.IPAddress, s.UserAgent, s.MFAVerified, s.HINAuthenticated)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Get selects a live session; expired or missing rows return (nil, nil).
func (r *SessionRepo) Get(ctx context.Context, id string) (*model.Session, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM sessions WHERE id=$1 AND expires_at > $2`
	return r.scanSession(r.db.Pool.QueryRow(ctx, q, id, r.now()))
}

// UpdateActivity bumps last-activity, slides the expiry, and records the
// latest client metadata in one statement.
func (r *SessionRepo) UpdateActivity(ctx context.Context, id string, act session.Activity) (*model.Session, error) {
	now := r.now()
	const q = `
UPDATE sessions
SET last_activity_at = $2,
    expires_at = $3,
    ip_address = COALESCE(NULLIF($4, ''), ip_address),
    user_agent = COALESCE(NULLIF($5, ''), user_agent)
WHERE id = $1 AND expires_at > $2
RETURNING ` + sessionColumns
	return r.scanSession(r.db.Pool.QueryRow(ctx, q, id, now, now.Add(r.ttl), act.IPAddress, act.UserAgent))
}

// Renew rotates the session id; the old id stops matching immediately.
func (r *SessionRepo) Renew(ctx context.Context, id string) (string, error) {
	newID, err := session.NewID()
	if err != nil {
		return "", err
	}
	const q = `UPDATE sessions SET id = $2 WHERE id = $1 AND expires_at > $3`
	tag, err := r.db.Pool.Exec(ctx, q, id, newID, r.now())
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", nil
	}
	return newID, nil
}

// Destroy deletes the session row, reporting whether it existed.
func (r *SessionRepo) Destroy(ctx context.Context, id string) (bool, error) {
	const q = `DELETE FROM sessions WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DestroyAllForUser deletes every session of one user.
func (r *SessionRepo) DestroyAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	const q = `DELETE FROM sessions WHERE user_id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CleanupExpired removes rows past expiry.
func (r *SessionRepo) CleanupExpired(ctx context.Context) (int, error) {
	const q = `DELETE FROM sessions WHERE expires_at <= $1`
	tag, err := r.db.Pool.Exec(ctx, q, r.now())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *SessionRepo) scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.UserID, &s.Role, &s.PharmacyScope, &s.CreatedAt, &s.LastActivityAt, &s.ExpiresAt, &s.IPAddress, &s.UserAgent, &s.MFAVerified, &s.HINAuthenticated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

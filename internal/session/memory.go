package session

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/medisafe/vaultcore/internal/model"
)

// MemoryStore is the in-process Store implementation. Safe for concurrent use;
// the periodic cleanup runs off the request path.
type MemoryStore struct {
	ttl     time.Duration
	sweepAt time.Duration
	now     func() time.Time
	log     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*model.Session

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL overrides the sliding-window length.
func WithTTL(ttl time.Duration) MemoryOption { return func(s *MemoryStore) { s.ttl = ttl } }

// WithSweepInterval overrides the cleanup interval.
func WithSweepInterval(d time.Duration) MemoryOption { return func(s *MemoryStore) { s.sweepAt = d } }

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) MemoryOption { return func(s *MemoryStore) { s.now = now } }

// NewMemoryStore constructs an in-memory session store. Call Start to run the
// background cleanup and Stop to halt it.
func NewMemoryStore(log *zap.Logger, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		ttl:      DefaultTTL,
		sweepAt:  DefaultSweepInterval,
		now:      time.Now,
		log:      log,
		sessions: make(map[string]*model.Session),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create allocates a fresh session record with a new id.
func (s *MemoryStore) Create(_ context.Context, in NewSession) (*model.Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &model.Session{
		ID:               id,
		UserID:           in.UserID,
		Role:             in.Role,
		PharmacyScope:    in.PharmacyScope,
		CreatedAt:        now,
		LastActivityAt:   now,
		ExpiresAt:        now.Add(s.ttl),
		IPAddress:        in.IPAddress,
		UserAgent:        in.UserAgent,
		MFAVerified:      in.MFAVerified,
		HINAuthenticated: in.HINAuthenticated,
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	cpy := *sess
	return &cpy, nil
}

// Get returns the live session or nil. Expired records read as absent.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.Expired(s.now()) {
		return nil, nil
	}
	cpy := *sess
	return &cpy, nil
}

// UpdateActivity bumps the activity timestamp, slides the expiry forward, and
// records the latest IP and user agent for hijack detection.
func (s *MemoryStore) UpdateActivity(_ context.Context, id string, act Activity) (*model.Session, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Expired(now) {
		return nil, nil
	}
	sess.LastActivityAt = now
	sess.ExpiresAt = now.Add(s.ttl)
	if act.IPAddress != "" {
		sess.IPAddress = act.IPAddress
	}
	if act.UserAgent != "" {
		sess.UserAgent = act.UserAgent
	}
	cpy := *sess
	return &cpy, nil
}

// Renew rotates the session id in place. The old id is dead the moment this
// returns, defeating session fixation.
func (s *MemoryStore) Renew(_ context.Context, id string) (string, error) {
	rotated, err := NewID()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Expired(s.now()) {
		return "", nil
	}
	delete(s.sessions, id)
	sess.ID = rotated
	s.sessions[rotated] = sess
	return rotated, nil
}

// Destroy removes the session, reporting whether it existed.
func (s *MemoryStore) Destroy(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

// DestroyAllForUser removes every session of one user. Used on password change
// and incident response.
func (s *MemoryStore) DestroyAllForUser(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

// CleanupExpired removes expired records and returns how many were removed.
func (s *MemoryStore) CleanupExpired(context.Context) (int, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

// Size reports the number of records, live or expired. For tests and metrics.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Start launches the periodic cleanup.
func (s *MemoryStore) Start() {
	s.startOnce.Do(func() {
		go func() {
			t := time.NewTicker(s.sweepAt)
			defer t.Stop()
			for {
				select {
				case <-t.C:
					n, _ := s.CleanupExpired(context.Background())
					if n > 0 {
						s.log.Debug("session cleanup", zap.Int("removed", n))
					}
				case <-s.done:
					return
				}
			}
		}()
	})
}

// Stop halts the periodic cleanup. Idempotent.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

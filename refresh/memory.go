package refresh

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and single-node
// development. Rotate holds the lock across purge and upsert, which gives the
// same all-or-nothing behavior the Postgres implementation gets from a
// transaction.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record // keyed by jti
	nextID  int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// PurgeStale deletes every record for subject that is expired or revoked.
func (s *MemoryStore) PurgeStale(_ context.Context, now time.Time, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked(now, subject)
	return nil
}

func (s *MemoryStore) purgeLocked(now time.Time, subject string) {
	for jti, rec := range s.records {
		if rec.Subject != subject {
			continue
		}
		if rec.Revoked || !rec.ExpiresAt.After(now) {
			delete(s.records, jti)
		}
	}
}

// Upsert updates the subject's active record in place or inserts a new one.
func (s *MemoryStore) Upsert(_ context.Context, now time.Time, subject, jti string, issuedAt, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upsertLocked(now, subject, jti, issuedAt, expiresAt), nil
}

func (s *MemoryStore) upsertLocked(now time.Time, subject, jti string, issuedAt, expiresAt time.Time) bool {
	for oldJTI, rec := range s.records {
		if rec.Subject != subject || !rec.Active(now) {
			continue
		}
		delete(s.records, oldJTI)
		rec.JTI = jti
		rec.IssuedAt = issuedAt
		rec.ExpiresAt = expiresAt
		rec.Revoked = false
		s.records[jti] = rec
		return true
	}

	s.nextID++
	s.records[jti] = &Record{
		ID:        s.nextID,
		JTI:       jti,
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	return false
}

// Rotate purges and upserts under a single lock hold.
func (s *MemoryStore) Rotate(_ context.Context, now time.Time, subject, jti string, issuedAt, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked(now, subject)
	return s.upsertLocked(now, subject, jti, issuedAt, expiresAt), nil
}

// Revoke marks the matching record revoked. Unknown jti is a no-op.
func (s *MemoryStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[jti]; ok {
		rec.Revoked = true
	}
	return nil
}

// IsRevoked reports the stored flag, or RevocationUnknown for untracked jtis.
func (s *MemoryStore) IsRevoked(_ context.Context, jti string) (Revocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[jti]
	if !ok {
		return RevocationUnknown, nil
	}
	if rec.Revoked {
		return RevocationRevoked, nil
	}
	return RevocationActive, nil
}

// ActiveCount reports how many non-expired, non-revoked records exist for
// subject. Diagnostic accessor: the engine never calls it; tests and
// operational checks use it to confirm the one-active-record invariant.
func (s *MemoryStore) ActiveCount(now time.Time, subject string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.records {
		if rec.Subject == subject && rec.Active(now) {
			n++
		}
	}
	return n
}

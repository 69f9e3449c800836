package refresh

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps infrastructure faults (connection loss, timeouts).
// Callers must fail closed on it: an unreachable store never means "not revoked".
var ErrStoreUnavailable = errors.New("refresh store unavailable")

// Revocation is the three-state answer to "is this jti revoked": a record may
// exist and be active, exist and be revoked, or not exist at all. The last case
// is distinct from "not revoked" — an untracked token may belong to a different
// store generation and is never trusted.
type Revocation int

const (
	// RevocationActive means a record exists with revoked = false.
	RevocationActive Revocation = iota
	// RevocationRevoked means a record exists with revoked = true.
	RevocationRevoked
	// RevocationUnknown means no record matches the jti.
	RevocationUnknown
)

func (r Revocation) String() string {
	switch r {
	case RevocationActive:
		return "active"
	case RevocationRevoked:
		return "revoked"
	case RevocationUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Record is one persisted refresh-token row.
type Record struct {
	ID        int64
	JTI       string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Active reports whether the record is non-expired and non-revoked at now.
// expires_at == now counts as expired.
func (r Record) Active(now time.Time) bool {
	return !r.Revoked && r.ExpiresAt.After(now)
}

// Store is the persistence contract for refresh records.
//
// Upsert returning updated=true vs false is informational only; both outcomes
// leave exactly one active record for the subject.
type Store interface {
	// PurgeStale deletes every record for subject that is expired or revoked.
	PurgeStale(ctx context.Context, now time.Time, subject string) error

	// Upsert updates the subject's active record in place (new jti, new
	// timestamps, revoked reset to false) when one exists, and inserts a new
	// record otherwise.
	Upsert(ctx context.Context, now time.Time, subject, jti string, issuedAt, expiresAt time.Time) (updated bool, err error)

	// Rotate runs PurgeStale followed by Upsert under one transaction boundary.
	Rotate(ctx context.Context, now time.Time, subject, jti string, issuedAt, expiresAt time.Time) (updated bool, err error)

	// Revoke marks the record matching jti as revoked. Idempotent: revoking an
	// already-revoked or nonexistent record is not an error.
	Revoke(ctx context.Context, jti string) error

	// IsRevoked reports the stored revoked flag, or RevocationUnknown when no
	// record matches.
	IsRevoked(ctx context.Context, jti string) (Revocation, error)
}

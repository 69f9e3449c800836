package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the refresh_tokens table DDL. Deployments apply it through their
// migration tooling; tests may execute it directly.
const Schema = `
CREATE TABLE IF NOT EXISTS refresh_tokens (
	id         BIGSERIAL PRIMARY KEY,
	jti        TEXT NOT NULL UNIQUE,
	subject    TEXT NOT NULL,
	issued_at  TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	revoked    BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS refresh_tokens_subject_idx ON refresh_tokens (subject);
CREATE UNIQUE INDEX IF NOT EXISTS refresh_tokens_subject_active_idx
	ON refresh_tokens (subject) WHERE NOT revoked;
`

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed refresh store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema applies the refresh_tokens DDL.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// PurgeStale deletes every record for subject that is expired or revoked.
func (s *PostgresStore) PurgeStale(ctx context.Context, now time.Time, subject string) error {
	return purgeStale(ctx, s.pool, now, subject)
}

// Upsert updates the subject's active record in place or inserts a new one.
func (s *PostgresStore) Upsert(ctx context.Context, now time.Time, subject, jti string, issuedAt, expiresAt time.Time) (bool, error) {
	return upsert(ctx, s.pool, now, subject, jti, issuedAt, expiresAt)
}

// Rotate runs purge and upsert inside one transaction. The UPDATE in upsert
// row-locks the subject's active record, serializing concurrent rotations for
// the same subject; the partial unique index on (subject) WHERE NOT revoked
// collapses concurrent inserts for a record-less subject into one row.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, subject, jti string, issuedAt, expiresAt time.Time) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := purgeStale(ctx, tx, now, subject); err != nil {
		return false, err
	}
	updated, err := upsert(ctx, tx, now, subject, jti, issuedAt, expiresAt)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return updated, nil
}

// Revoke marks the matching record revoked. Unknown jti is a no-op.
func (s *PostgresStore) Revoke(ctx context.Context, jti string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE jti = $1
	`, jti)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked reports the stored flag, or RevocationUnknown for untracked jtis.
func (s *PostgresStore) IsRevoked(ctx context.Context, jti string) (Revocation, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx, `
		SELECT revoked FROM refresh_tokens WHERE jti = $1
	`, jti).Scan(&revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return RevocationUnknown, nil
	}
	if err != nil {
		return RevocationUnknown, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if revoked {
		return RevocationRevoked, nil
	}
	return RevocationActive, nil
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, so the
// single-statement helpers can run standalone or inside Rotate's transaction.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func purgeStale(ctx context.Context, q pgxQuerier, now time.Time, subject string) error {
	_, err := q.Exec(ctx, `
		DELETE FROM refresh_tokens
		WHERE subject = $1
		  AND (expires_at <= $2 OR revoked)
	`, subject, now)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func upsert(ctx context.Context, q pgxQuerier, now time.Time, subject, jti string, issuedAt, expiresAt time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE refresh_tokens
		SET jti = $2, issued_at = $3, expires_at = $4, revoked = FALSE
		WHERE subject = $1
		  AND NOT revoked
		  AND expires_at > $5
	`, subject, jti, issuedAt, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Two transactions can both see zero rows updated when the subject has
	// no active record yet. The partial unique index makes the second insert
	// land on the first one's row instead of creating a sibling.
	_, err = q.Exec(ctx, `
		INSERT INTO refresh_tokens (jti, subject, issued_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, FALSE)
		ON CONFLICT (subject) WHERE NOT revoked DO UPDATE
		SET jti = EXCLUDED.jti,
		    issued_at = EXCLUDED.issued_at,
		    expires_at = EXCLUDED.expires_at,
		    revoked = FALSE
	`, jti, subject, issuedAt, expiresAt)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return false, nil
}

// Package refresh is the single source of truth for which refresh tokens are
// currently valid. Records are keyed by jti; at most one record per subject may
// be both non-expired and non-revoked at a time, and every write path exists to
// preserve that invariant.
//
// # Design
//
// Two implementations share one contract: [MemoryStore] for tests and
// single-node development, and [PostgresStore] on jackc/pgx/v5 for deployments.
// [Store.Rotate] is the only compound write; it runs purge-then-upsert inside a
// single transaction boundary so a crash mid-rotation cannot leave a subject
// with zero or two active records.
//
// # What this package must NOT do
//
//   - Decode or verify tokens. It sees jti strings and timestamps only.
//   - Decide verdicts. Revocation state is reported, never interpreted.
package refresh

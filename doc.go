// Package authcore implements the dual-token authentication lifecycle for the
// study-tracking backend: short-lived JWT access tokens paired with rotating,
// server-tracked refresh tokens, plus the revocation machinery that makes a
// stolen token pair worthless after one use.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// [Verdict], and value types (TokenPair, MetricsSnapshot, AuditEvent). Token
// encoding lives in authcore/jwt, refresh-record persistence in
// authcore/refresh, and the access deny list in authcore/blacklist; none of
// those sub-packages import authcore.
//
// # What this package must NOT do
//
//   - Expose Redis or Postgres handles, store internals, or the signing secret
//     in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Leak internal failure detail past the Verdict enumeration and the
//     sentinel error taxonomy.
//
// # Verdict contract
//
// Verify is the single authority deciding whether a presented
// (access, refresh, subject) triple is trustworthy. Callers act on the
// Verdict alone: VerdictValid admits the request, VerdictAccessExpired asks
// for a silent Rotate, VerdictRefreshExpired forces re-login, and
// VerdictInvalid denies. The accompanying error names the reason for logs and
// tests; it must never be shown to end users.
package authcore

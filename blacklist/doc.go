// Package blacklist provides the Redis-backed deny list for access token
// IDs that were revoked before their natural expiry.
//
// # Design
//
// Each entry is a single Redis key "<prefix>:<jti>" holding the sentinel
// value "1" with a TTL equal to the token's remaining lifetime. Once the
// token would have expired on its own the entry evaporates; nothing ever
// needs to be cleaned up by hand. The TTL is floored at one second so a
// token revoked at the edge of its lifetime still lands on the list.
//
// # Architecture boundaries
//
// This package answers exactly one question: has this access jti been
// revoked early. It does not parse tokens, inspect claims, or decide
// verdicts. Lookups distinguish "present", "absent", and "Redis
// unreachable" so callers can fail closed on the last.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling package.
//   - Store anything beyond the sentinel value.
//   - Swallow Redis errors as "not blacklisted".
package blacklist

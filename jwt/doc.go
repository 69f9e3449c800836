// Package jwt is the claim-set codec for the dual-token lifecycle: it mints and
// parses signed access/refresh tokens carrying exactly the six standard claims
// {sub, jti, iat, exp, typ, iss}, and enforces a strict allow-list over decoded
// claim maps.
//
// # Design
//
// Tokens are decoded into a raw claim map rather than a typed struct so that
// unknown claims survive parsing and can be rejected by [InvalidClaims]. A typed
// decode would silently drop extras, which is exactly the failure mode the
// allow-list exists to catch.
//
// # Architecture boundaries
//
// This package owns signing, parsing, and claim-shape validation. Verdicts,
// stores, and revocation live in the root package and its store packages; this
// package never touches Redis or Postgres.
package jwt

// Package middleware exposes HTTP adapters for cookie-carried token pairs
// built on top of authcore.Engine verification.
//
// # Guards
//
//   - [Guard] — reads the token cookies, runs the verification pipeline, and
//     silently rotates the pair when only the access token has expired.
//
// [SetTokenCookies] and [ClearTokenCookies] manage the cookie lifecycle at
// login and logout.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement verification logic itself. Every decision is delegated to
// Engine.Verify and Engine.Rotate.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Access Redis or the refresh store (Engine handles I/O).
//   - Reveal to the client which pipeline step rejected a pair. Rejections
//     surface as a bare 401; backend faults as a bare 503.
package middleware

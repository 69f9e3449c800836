package authcore

import "errors"

var (
	// ErrTokenMalformed is returned when a token fails signature or structural
	// checks. Fatal to the request, never retried.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrClaimSetInvalid is returned when a decoded token carries an extra
	// claim or is missing, nulling, or blanking a required one.
	ErrClaimSetInvalid = errors.New("claim set invalid")
	// ErrClaimMismatch is returned when subject, type tag, or issuer disagree
	// across the pair. Both tokens are burned defensively.
	ErrClaimMismatch = errors.New("standard claim mismatch")
	// ErrAccessExpired accompanies VerdictAccessExpired. Not fatal; the caller
	// rotates and retries.
	ErrAccessExpired = errors.New("access token expired")
	// ErrRefreshExpired accompanies VerdictRefreshExpired. Fatal to the
	// session; recoverable only by re-login.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrReplayDetected is returned when a revoked refresh token or a
	// blacklisted access token is presented. Treated identically to tampering.
	ErrReplayDetected = errors.New("token replay detected")
	// ErrRefreshUnknown is returned when no record exists for the presented
	// refresh jti. An untracked refresh token is never trusted.
	ErrRefreshUnknown = errors.New("refresh token not tracked")
	// ErrBackendUnavailable is returned when a store or blacklist call fails.
	// The request fails closed; a timeout is never read as "not revoked".
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrInternal covers signing and other server-side faults. The message
	// never includes the secret or claim contents.
	ErrInternal = errors.New("internal auth error")
	// ErrEngineNotReady is returned when an Engine method runs before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)

package authcore

// Verdict is the terminal outcome of the verification pipeline. It is the
// only value callers may act on; everything else stays inside the engine.
type Verdict int

const (
	// VerdictInvalid denies the request. The zero value is deliberately the
	// deny verdict so a forgotten assignment can never admit anyone.
	VerdictInvalid Verdict = iota
	// VerdictValid admits the request.
	VerdictValid
	// VerdictAccessExpired means the refresh token is still good: the caller
	// should silently rotate and retry instead of bouncing the user.
	VerdictAccessExpired
	// VerdictRefreshExpired means the session is over; only a full re-login
	// recovers it.
	VerdictRefreshExpired
)

func (v Verdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictInvalid:
		return "invalid"
	case VerdictAccessExpired:
		return "access_expired"
	case VerdictRefreshExpired:
		return "refresh_expired"
	default:
		return "unknown"
	}
}

package internaldefs

import (
	authcore "github.com/brainbuddy/authcore"
)

// CounterDef binds an engine counter to its stable exposition name.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its stable exposition name.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricVerifyValid, Name: "authcore_verify_valid_total", Help: "Verification runs that ended valid."},
	{ID: authcore.MetricVerifyInvalid, Name: "authcore_verify_invalid_total", Help: "Verification runs that ended invalid."},
	{ID: authcore.MetricVerifyAccessExpired, Name: "authcore_verify_access_expired_total", Help: "Verification runs that ended with an expired access token."},
	{ID: authcore.MetricVerifyRefreshExpired, Name: "authcore_verify_refresh_expired_total", Help: "Verification runs that ended with an expired refresh token."},
	{ID: authcore.MetricClaimMismatchBurn, Name: "authcore_claim_mismatch_burn_total", Help: "Defensive pair burns triggered by claim mismatches."},
	{ID: authcore.MetricReplayDetected, Name: "authcore_replay_detected_total", Help: "Revoked or blacklisted tokens presented again."},
	{ID: authcore.MetricRefreshUntracked, Name: "authcore_refresh_untracked_total", Help: "Refresh tokens with no store record."},
	{ID: authcore.MetricInitialIssue, Name: "authcore_initial_issue_total", Help: "Initial pair issuances."},
	{ID: authcore.MetricRotation, Name: "authcore_rotation_total", Help: "Pair rotations."},
	{ID: authcore.MetricRevoke, Name: "authcore_revoke_total", Help: "Explicit pair revocations."},
	{ID: authcore.MetricBackendUnavailable, Name: "authcore_backend_unavailable_total", Help: "Store or blacklist faults that failed a call closed."},
	{ID: authcore.MetricBurnIncomplete, Name: "authcore_burn_incomplete_total", Help: "Best-effort burns that could not complete."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricVerifyLatency, Name: "authcore_verify_latency_seconds", Help: "Verify latency histogram."},
}

var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus and OTel both expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

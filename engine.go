package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/brainbuddy/authcore/blacklist"
	"github.com/brainbuddy/authcore/jwt"
	"github.com/brainbuddy/authcore/refresh"
)

// Engine runs the verification pipeline and the rotation protocol. Construct
// one through [Builder.Build]; all methods are safe for concurrent use.
type Engine struct {
	config    Config
	codec     *jwt.Manager
	store     refresh.Store
	blacklist *blacklist.Store
	audit     *auditDispatcher
	metrics   *Metrics
	clock     func() time.Time
}

// TokenPair is the product of IssueInitial and Rotate. Expiry times are
// included so transport layers can set cookie lifetimes without re-decoding.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Close flushes the audit dispatcher. The stores are owned by the caller and
// are not touched.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded under buffer pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AccessTTL reports the configured access token lifetime.
func (e *Engine) AccessTTL() time.Duration {
	return e.config.Token.AccessTTL
}

// RefreshTTL reports the configured refresh token lifetime.
func (e *Engine) RefreshTTL() time.Duration {
	return e.config.Token.RefreshTTL
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.Refresh.StoreTimeout)
}

// Verify decides whether the presented (access, refresh, subject) triple is
// currently trustworthy. The checks run in a fixed order, short-circuiting
// on the first failure: decode, claim allow-list, standard-claim cross-check
// (mismatch burns both tokens), refresh expiry, refresh revocation (the
// replay detector, deliberately ahead of access expiry), access expiry, and
// finally the access blacklist. Cheap shape checks run before any store
// round-trip.
//
// The returned error names the failure for logs and tests. Callers expose
// only the Verdict; a non-nil error with VerdictInvalid must never be
// distinguished to end users beyond the deny itself. Store faults return
// ErrBackendUnavailable and fail closed.
func (e *Engine) Verify(ctx context.Context, subject, accessToken, refreshToken string) (Verdict, error) {
	if e == nil || e.codec == nil || e.store == nil || e.blacklist == nil {
		return VerdictInvalid, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricVerifyLatency, time.Since(start))
		}()
	}

	now := e.clock()

	access, err := e.codec.Decode(accessToken, false)
	if err != nil {
		e.metricInc(MetricVerifyInvalid)
		e.emitAudit(ctx, auditEventVerifyDenied, false, subject, "", "", ErrTokenMalformed, func() map[string]string {
			return map[string]string{"token": "access"}
		})
		return VerdictInvalid, ErrTokenMalformed
	}
	refreshClaims, err := e.codec.Decode(refreshToken, false)
	if err != nil {
		e.metricInc(MetricVerifyInvalid)
		e.emitAudit(ctx, auditEventVerifyDenied, false, subject, access.ID(), "", ErrTokenMalformed, func() map[string]string {
			return map[string]string{"token": "refresh"}
		})
		return VerdictInvalid, ErrTokenMalformed
	}

	if names := jwt.InvalidClaims(access); len(names) > 0 {
		e.metricInc(MetricVerifyInvalid)
		e.emitAudit(ctx, auditEventVerifyDenied, false, subject, access.ID(), refreshClaims.ID(), ErrClaimSetInvalid, func() map[string]string {
			return map[string]string{"token": "access", "claims": fmt.Sprint(names)}
		})
		return VerdictInvalid, ErrClaimSetInvalid
	}
	if names := jwt.InvalidClaims(refreshClaims); len(names) > 0 {
		e.metricInc(MetricVerifyInvalid)
		e.emitAudit(ctx, auditEventVerifyDenied, false, subject, access.ID(), refreshClaims.ID(), ErrClaimSetInvalid, func() map[string]string {
			return map[string]string{"token": "refresh", "claims": fmt.Sprint(names)}
		})
		return VerdictInvalid, ErrClaimSetInvalid
	}

	if access.Subject() != subject || refreshClaims.Subject() != subject ||
		access.Type() != e.config.Token.AccessType ||
		refreshClaims.Type() != e.config.Token.RefreshType ||
		access.Issuer() != e.config.Token.Issuer ||
		refreshClaims.Issuer() != e.config.Token.Issuer {
		// A mismatch here almost always means a forged or mixed-and-matched
		// pair; both halves are burned rather than attempting partial trust.
		e.burnPair(ctx, now, access, refreshClaims)
		e.metricInc(MetricClaimMismatchBurn)
		e.metricInc(MetricVerifyInvalid)
		e.emitAudit(ctx, auditEventClaimMismatchBurn, false, subject, access.ID(), refreshClaims.ID(), ErrClaimMismatch, nil)
		return VerdictInvalid, ErrClaimMismatch
	}

	if refreshClaims.ExpiresAt() <= now.Unix() {
		e.revokeBestEffort(ctx, refreshClaims.ID())
		e.metricInc(MetricVerifyRefreshExpired)
		e.emitAudit(ctx, auditEventRefreshExpired, false, subject, access.ID(), refreshClaims.ID(), ErrRefreshExpired, nil)
		return VerdictRefreshExpired, ErrRefreshExpired
	}

	sctx, cancel := e.storeContext(ctx)
	revocation, err := e.store.IsRevoked(sctx, refreshClaims.ID())
	cancel()
	if err != nil {
		e.metricInc(MetricBackendUnavailable)
		e.metricInc(MetricVerifyInvalid)
		e.emitAudit(ctx, auditEventBackendUnavailable, false, subject, access.ID(), refreshClaims.ID(), ErrBackendUnavailable, nil)
		return VerdictInvalid, ErrBackendUnavailable
	}
	switch revocation {
	case refresh.RevocationRevoked:
		// The refresh token was rotated out; presenting it again is treated
		// as compromise, so the paired access token is blacklisted too.
		e.blacklistBestEffort(ctx, now, access)
		e.metricInc(MetricReplayDetected)
		e.metricInc(MetricVerifyInvalid)
		e.emitAudit(ctx, auditEventReplayDetected, false, subject, access.ID(), refreshClaims.ID(), ErrReplayDetected, nil)
		return VerdictInvalid, ErrReplayDetected
	case refresh.RevocationUnknown:
		e.metricInc(MetricRefreshUntracked)
		e.metricInc(MetricVerifyInvalid)
		e.emitAudit(ctx, auditEventVerifyDenied, false, subject, access.ID(), refreshClaims.ID(), ErrRefreshUnknown, nil)
		return VerdictInvalid, ErrRefreshUnknown
	}

	if access.ExpiresAt() <= now.Unix() {
		e.metricInc(MetricVerifyAccessExpired)
		e.emitAudit(ctx, auditEventAccessExpired, false, subject, access.ID(), refreshClaims.ID(), ErrAccessExpired, nil)
		return VerdictAccessExpired, ErrAccessExpired
	}

	bctx, cancel := e.storeContext(ctx)
	listed, err := e.blacklist.Contains(bctx, access.ID())
	cancel()
	if err != nil {
		e.metricInc(MetricBackendUnavailable)
		e.metricInc(MetricVerifyInvalid)
		e.emitAudit(ctx, auditEventBackendUnavailable, false, subject, access.ID(), refreshClaims.ID(), ErrBackendUnavailable, nil)
		return VerdictInvalid, ErrBackendUnavailable
	}
	if listed {
		e.metricInc(MetricReplayDetected)
		e.metricInc(MetricVerifyInvalid)
		e.emitAudit(ctx, auditEventReplayDetected, false, subject, access.ID(), refreshClaims.ID(), ErrReplayDetected, nil)
		return VerdictInvalid, ErrReplayDetected
	}

	e.metricInc(MetricVerifyValid)
	return VerdictValid, nil
}

// IssueInitial mints the first token pair of a session, at login.
func (e *Engine) IssueInitial(ctx context.Context, subject string) (TokenPair, error) {
	return e.issuePair(ctx, subject, auditEventInitialIssue, MetricInitialIssue)
}

// Rotate replaces the subject's current pair after VerdictAccessExpired or a
// proactive near-expiry renewal. The old refresh record is superseded in the
// same store transaction that tracks the new one.
func (e *Engine) Rotate(ctx context.Context, subject string) (TokenPair, error) {
	return e.issuePair(ctx, subject, auditEventRotation, MetricRotation)
}

func (e *Engine) issuePair(ctx context.Context, subject, event string, metric MetricID) (TokenPair, error) {
	if e == nil || e.codec == nil || e.store == nil {
		return TokenPair{}, ErrEngineNotReady
	}
	if subject == "" {
		return TokenPair{}, ErrClaimSetInvalid
	}

	access, err := e.codec.Issue(subject, e.config.Token.AccessType, e.config.Token.AccessTTL)
	if err != nil {
		e.emitAudit(ctx, event, false, subject, "", "", ErrInternal, nil)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	refreshTok, err := e.codec.Issue(subject, e.config.Token.RefreshType, e.config.Token.RefreshTTL)
	if err != nil {
		e.emitAudit(ctx, event, false, subject, access.ID, "", ErrInternal, nil)
		return TokenPair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	sctx, cancel := e.storeContext(ctx)
	_, err = e.store.Rotate(sctx, e.clock(), subject, refreshTok.ID, refreshTok.IssuedAt, refreshTok.ExpiresAt)
	cancel()
	if err != nil {
		e.metricInc(MetricBackendUnavailable)
		e.emitAudit(ctx, event, false, subject, access.ID, refreshTok.ID, ErrBackendUnavailable, nil)
		return TokenPair{}, ErrBackendUnavailable
	}

	e.metricInc(metric)
	e.emitAudit(ctx, event, true, subject, access.ID, refreshTok.ID, nil, nil)

	return TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refreshTok.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refreshTok.ExpiresAt,
	}, nil
}

// RevokeCurrent burns the presented pair: the refresh jti is revoked in the
// store and the access jti is blacklisted for its remaining lifetime. Used
// by logout and account withdrawal. Idempotent; a malformed token
// contributes nothing and is not an error. Store faults return
// ErrBackendUnavailable after attempting the other half.
func (e *Engine) RevokeCurrent(ctx context.Context, accessToken, refreshToken string) error {
	if e == nil || e.codec == nil || e.store == nil || e.blacklist == nil {
		return ErrEngineNotReady
	}

	now := e.clock()
	var accessJTI, refreshJTI string
	var failure error

	if claims, err := e.codec.Decode(refreshToken, false); err == nil {
		if jti := claims.ID(); jti != "" {
			refreshJTI = jti
			sctx, cancel := e.storeContext(ctx)
			err := e.store.Revoke(sctx, jti)
			cancel()
			if err != nil {
				e.metricInc(MetricBackendUnavailable)
				failure = ErrBackendUnavailable
			}
		}
	}

	if claims, err := e.codec.Decode(accessToken, false); err == nil {
		if jti := claims.ID(); jti != "" {
			accessJTI = jti
			bctx, cancel := e.storeContext(ctx)
			err := e.blacklist.Add(bctx, now, jti, time.Unix(claims.ExpiresAt(), 0))
			cancel()
			if err != nil {
				e.metricInc(MetricBackendUnavailable)
				failure = ErrBackendUnavailable
			}
		}
	}

	e.metricInc(MetricRevoke)
	e.emitAudit(ctx, auditEventRevoke, failure == nil, "", accessJTI, refreshJTI, failure, nil)

	return failure
}

// burnPair is the best-effort half of the mismatch policy: the verdict does
// not depend on these writes, so failures are counted and audited rather
// than surfaced.
func (e *Engine) burnPair(ctx context.Context, now time.Time, access, refreshClaims jwt.Payload) {
	incomplete := false

	if jti := refreshClaims.ID(); jti != "" {
		sctx, cancel := e.storeContext(ctx)
		if err := e.store.Revoke(sctx, jti); err != nil {
			incomplete = true
		}
		cancel()
	}
	if jti := access.ID(); jti != "" {
		bctx, cancel := e.storeContext(ctx)
		if err := e.blacklist.Add(bctx, now, jti, time.Unix(access.ExpiresAt(), 0)); err != nil {
			incomplete = true
		}
		cancel()
	}

	if incomplete {
		e.metricInc(MetricBurnIncomplete)
		e.emitAudit(ctx, auditEventBurnIncomplete, false, "", access.ID(), refreshClaims.ID(), ErrBackendUnavailable, nil)
	}
}

func (e *Engine) revokeBestEffort(ctx context.Context, jti string) {
	if jti == "" {
		return
	}
	sctx, cancel := e.storeContext(ctx)
	err := e.store.Revoke(sctx, jti)
	cancel()
	if err != nil {
		e.metricInc(MetricBurnIncomplete)
		e.emitAudit(ctx, auditEventBurnIncomplete, false, "", "", jti, ErrBackendUnavailable, nil)
	}
}

func (e *Engine) blacklistBestEffort(ctx context.Context, now time.Time, access jwt.Payload) {
	jti := access.ID()
	if jti == "" {
		return
	}
	bctx, cancel := e.storeContext(ctx)
	err := e.blacklist.Add(bctx, now, jti, time.Unix(access.ExpiresAt(), 0))
	cancel()
	if err != nil {
		e.metricInc(MetricBurnIncomplete)
		e.emitAudit(ctx, auditEventBurnIncomplete, false, "", jti, "", ErrBackendUnavailable, nil)
	}
}

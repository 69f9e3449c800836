package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brainbuddy/authcore/jwt"
	"github.com/brainbuddy/authcore/refresh"
	"github.com/redis/go-redis/v9"
)

const testSubject = "alice"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.Issuer = "brainbuddy"
	cfg.Token.AccessTTL = 5 * time.Minute
	cfg.Token.RefreshTTL = time.Hour
	return cfg
}

func newTestEngine(t *testing.T, clk *testClock) (*Engine, *refresh.MemoryStore, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	store := refresh.NewMemoryStore()

	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithRefreshStore(store).
		WithClock(clk.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, store, mr
}

// faultStore simulates a refresh store whose backend is down.
type faultStore struct{}

func (faultStore) PurgeStale(context.Context, time.Time, string) error {
	return refresh.ErrStoreUnavailable
}

func (faultStore) Upsert(context.Context, time.Time, string, string, time.Time, time.Time) (bool, error) {
	return false, refresh.ErrStoreUnavailable
}

func (faultStore) Rotate(context.Context, time.Time, string, string, time.Time, time.Time) (bool, error) {
	return false, refresh.ErrStoreUnavailable
}

func (faultStore) Revoke(context.Context, string) error {
	return refresh.ErrStoreUnavailable
}

func (faultStore) IsRevoked(context.Context, string) (refresh.Revocation, error) {
	return refresh.RevocationUnknown, refresh.ErrStoreUnavailable
}

func TestIssueInitialThenVerifyValid(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)

	pair, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatal("refresh token must outlive the access token")
	}

	verdict, err := engine.Verify(ctx, testSubject, pair.AccessToken, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verdict != VerdictValid {
		t.Fatalf("verdict = %v, want valid", verdict)
	}
}

func TestVerifyTamperedTokens(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)

	pair, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	tamper := func(tok string) string {
		b := []byte(tok)
		i := len(b) / 2
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		return string(b)
	}

	verdict, err := engine.Verify(ctx, testSubject, tamper(pair.AccessToken), pair.RefreshToken)
	if verdict != VerdictInvalid || !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("tampered access: verdict = %v, err = %v", verdict, err)
	}

	verdict, err = engine.Verify(ctx, testSubject, pair.AccessToken, tamper(pair.RefreshToken))
	if verdict != VerdictInvalid || !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("tampered refresh: verdict = %v, err = %v", verdict, err)
	}
}

func TestVerifyExtraClaimRejected(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)
	cfg := testConfig()

	pair, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	// Forge an access token that smuggles a role claim, signed with the real
	// secret so only the allow-list can catch it.
	codec, err := jwt.NewManager(jwt.Config{
		Secret:        cfg.Token.Secret,
		SigningMethod: jwt.MethodHS256,
		Issuer:        cfg.Token.Issuer,
		Clock:         clk.Now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	now := clk.Now()
	forged, err := codec.Encode(jwt.Payload{
		"sub":  testSubject,
		"jti":  "forged-jti",
		"iat":  now.Unix(),
		"exp":  now.Add(time.Minute).Unix(),
		"typ":  cfg.Token.AccessType,
		"iss":  cfg.Token.Issuer,
		"role": "admin",
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	verdict, err := engine.Verify(ctx, testSubject, forged, pair.RefreshToken)
	if verdict != VerdictInvalid || !errors.Is(err, ErrClaimSetInvalid) {
		t.Fatalf("verdict = %v, err = %v; want invalid, ErrClaimSetInvalid", verdict, err)
	}
}

func TestVerifySubjectMismatchBurnsPair(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)

	pair, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	verdict, err := engine.Verify(ctx, "mallory", pair.AccessToken, pair.RefreshToken)
	if verdict != VerdictInvalid || !errors.Is(err, ErrClaimMismatch) {
		t.Fatalf("verdict = %v, err = %v; want invalid, ErrClaimMismatch", verdict, err)
	}

	// Both halves were burned: the same pair now trips the replay detector
	// even for the real subject.
	verdict, err = engine.Verify(ctx, testSubject, pair.AccessToken, pair.RefreshToken)
	if verdict != VerdictInvalid || !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("after burn: verdict = %v, err = %v; want invalid, ErrReplayDetected", verdict, err)
	}
}

func TestVerifyMixedTypeTagsRejected(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)

	pair, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	// Presenting the refresh token in the access slot is a typ mismatch.
	verdict, err := engine.Verify(ctx, testSubject, pair.RefreshToken, pair.RefreshToken)
	if verdict != VerdictInvalid || !errors.Is(err, ErrClaimMismatch) {
		t.Fatalf("verdict = %v, err = %v; want invalid, ErrClaimMismatch", verdict, err)
	}
}

func TestAccessExpiredThenRotate(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)

	pair, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	clk.Advance(engine.AccessTTL() + time.Second)

	verdict, err := engine.Verify(ctx, testSubject, pair.AccessToken, pair.RefreshToken)
	if verdict != VerdictAccessExpired || !errors.Is(err, ErrAccessExpired) {
		t.Fatalf("verdict = %v, err = %v; want access_expired", verdict, err)
	}

	next, err := engine.Rotate(ctx, testSubject)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	verdict, err = engine.Verify(ctx, testSubject, next.AccessToken, next.RefreshToken)
	if err != nil {
		t.Fatalf("Verify after rotate: %v", err)
	}
	if verdict != VerdictValid {
		t.Fatalf("verdict after rotate = %v, want valid", verdict)
	}
}

func TestAccessExpiryBoundaryExactlyNow(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)

	pair, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	// exp == now is expired, not valid.
	clk.Advance(engine.AccessTTL())

	verdict, err := engine.Verify(ctx, testSubject, pair.AccessToken, pair.RefreshToken)
	if verdict != VerdictAccessExpired || !errors.Is(err, ErrAccessExpired) {
		t.Fatalf("verdict = %v, err = %v; want access_expired at exp == now", verdict, err)
	}
}

func TestRefreshExpiredForcesRelogin(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, store, _ := newTestEngine(t, clk)

	pair, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	clk.Advance(engine.RefreshTTL() + time.Second)

	verdict, err := engine.Verify(ctx, testSubject, pair.AccessToken, pair.RefreshToken)
	if verdict != VerdictRefreshExpired || !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("verdict = %v, err = %v; want refresh_expired", verdict, err)
	}

	// The expired refresh jti was revoked as a side effect.
	claims, err := engine.codec.Decode(pair.RefreshToken, false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rev, err := store.IsRevoked(ctx, claims.ID()); err != nil || rev != refresh.RevocationRevoked {
		t.Fatalf("IsRevoked = %v, %v; want revoked, nil", rev, err)
	}

	// Re-login works and clears the stale record.
	next, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial after expiry: %v", err)
	}
	verdict, err = engine.Verify(ctx, testSubject, next.AccessToken, next.RefreshToken)
	if err != nil {
		t.Fatalf("Verify after re-login: %v", err)
	}
	if verdict != VerdictValid {
		t.Fatalf("verdict after re-login = %v, want valid", verdict)
	}
	if got := store.ActiveCount(clk.Now(), testSubject); got != 1 {
		t.Fatalf("active records = %d, want 1", got)
	}
}

func TestOldRefreshRejectedAfterRotation(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)

	first, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}
	second, err := engine.Rotate(ctx, testSubject)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	// Mixed generations: post-rotation access with pre-rotation refresh.
	verdict, err := engine.Verify(ctx, testSubject, second.AccessToken, first.RefreshToken)
	if verdict != VerdictInvalid || !errors.Is(err, ErrRefreshUnknown) {
		t.Fatalf("old refresh: verdict = %v, err = %v; want invalid, ErrRefreshUnknown", verdict, err)
	}

	verdict, err = engine.Verify(ctx, testSubject, second.AccessToken, second.RefreshToken)
	if err != nil {
		t.Fatalf("Verify new pair: %v", err)
	}
	if verdict != VerdictValid {
		t.Fatalf("new pair verdict = %v, want valid", verdict)
	}
}

func TestRevokeCurrentIdempotent(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)

	pair, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	if err := engine.RevokeCurrent(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("RevokeCurrent: %v", err)
	}
	if err := engine.RevokeCurrent(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		t.Fatalf("second RevokeCurrent: %v", err)
	}

	verdict, err := engine.Verify(ctx, testSubject, pair.AccessToken, pair.RefreshToken)
	if verdict != VerdictInvalid || !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("verdict = %v, err = %v; want invalid, ErrReplayDetected", verdict, err)
	}
}

func TestRevokedAccessBlockedEvenWithFreshRefresh(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)

	first, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}
	if err := engine.RevokeCurrent(ctx, first.AccessToken, first.RefreshToken); err != nil {
		t.Fatalf("RevokeCurrent: %v", err)
	}
	second, err := engine.Rotate(ctx, testSubject)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	// The old access token is within its signed exp but blacklisted; pairing
	// it with a live refresh token must not resurrect it.
	verdict, err := engine.Verify(ctx, testSubject, first.AccessToken, second.RefreshToken)
	if verdict != VerdictInvalid || !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("verdict = %v, err = %v; want invalid, ErrReplayDetected", verdict, err)
	}
}

func TestRevokeCurrentToleratesMalformedTokens(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)

	if err := engine.RevokeCurrent(ctx, "not-a-token", ""); err != nil {
		t.Fatalf("RevokeCurrent with garbage input: %v", err)
	}
}

func TestVerifyUntrackedRefreshRejected(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)
	other, _, _ := newTestEngine(t, clk)

	// Tokens minted by a twin engine with its own store: signatures check
	// out, but this store has never seen the refresh jti.
	pair, err := other.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	verdict, err := engine.Verify(ctx, testSubject, pair.AccessToken, pair.RefreshToken)
	if verdict != VerdictInvalid || !errors.Is(err, ErrRefreshUnknown) {
		t.Fatalf("verdict = %v, err = %v; want invalid, ErrRefreshUnknown", verdict, err)
	}
}

func TestVerifyFailsClosedWhenRefreshStoreDown(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	healthy, _, _ := newTestEngine(t, clk)

	// Tokens minted by a healthy twin engine with the same secret; the
	// engine under test sees only a faulting store.
	pair, err := healthy.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	_, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithRefreshStore(faultStore{}).
		WithClock(clk.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	verdict, err := engine.Verify(ctx, testSubject, pair.AccessToken, pair.RefreshToken)
	if verdict != VerdictInvalid || !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("verdict = %v, err = %v; want invalid, ErrBackendUnavailable", verdict, err)
	}

	if _, err := engine.Rotate(ctx, testSubject); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("Rotate err = %v, want ErrBackendUnavailable", err)
	}
	if _, err := engine.IssueInitial(ctx, testSubject); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("IssueInitial err = %v, want ErrBackendUnavailable", err)
	}
}

func TestVerifyFailsClosedWhenBlacklistDown(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, mr := newTestEngine(t, clk)

	pair, err := engine.IssueInitial(ctx, testSubject)
	if err != nil {
		t.Fatalf("IssueInitial: %v", err)
	}

	mr.Close()

	verdict, err := engine.Verify(ctx, testSubject, pair.AccessToken, pair.RefreshToken)
	if verdict != VerdictInvalid || !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("verdict = %v, err = %v; want invalid, ErrBackendUnavailable", verdict, err)
	}
}

func TestIssuePairRejectsEmptySubject(t *testing.T) {
	ctx := context.Background()
	clk := newTestClock()
	engine, _, _ := newTestEngine(t, clk)

	if _, err := engine.IssueInitial(ctx, ""); !errors.Is(err, ErrClaimSetInvalid) {
		t.Fatalf("err = %v, want ErrClaimSetInvalid", err)
	}
}

func TestNilEngineFailsClosed(t *testing.T) {
	var engine *Engine

	verdict, err := engine.Verify(context.Background(), testSubject, "a", "r")
	if verdict != VerdictInvalid || !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("verdict = %v, err = %v; want invalid, ErrEngineNotReady", verdict, err)
	}
	if _, err := engine.IssueInitial(context.Background(), testSubject); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("err = %v, want ErrEngineNotReady", err)
	}
	if err := engine.RevokeCurrent(context.Background(), "a", "r"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("err = %v, want ErrEngineNotReady", err)
	}
	engine.Close()
}

package authcore

import (
	"errors"
	"time"

	"github.com/brainbuddy/authcore/blacklist"
	"github.com/brainbuddy/authcore/jwt"
	"github.com/brainbuddy/authcore/refresh"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Construction is allocation-only; no I/O
// happens until the first Engine method call. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  refresh.Store
	sink   AuditSink
	clock  func() time.Time

	built bool
}

// New returns a Builder preloaded with defaults. The signing secret, issuer,
// Redis client, and refresh store must still be supplied.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The secret is deep-copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client backing the access blacklist.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRefreshStore supplies the refresh-record store: refresh.NewMemoryStore
// for tests and single-node dev, refresh.NewPostgresStore in production.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.store = store
	return b
}

// WithAuditSink supplies the audit destination. Ignored unless
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the engine's time source. Tests use this to cross TTL
// boundaries without sleeping.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles the engine counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the verify latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("refresh store required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	codec, err := jwt.NewManager(jwt.Config{
		Secret:        cloneBytes(cfg.Token.Secret),
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		Issuer:        cfg.Token.Issuer,
		Clock:         clock,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		codec:     codec,
		store:     b.store,
		blacklist: blacklist.NewStore(b.redis, cfg.Blacklist.RedisPrefix),
		audit:     newAuditDispatcher(cfg.Audit, b.sink),
		metrics:   NewMetrics(cfg.Metrics),
		clock:     clock,
	}

	b.built = true

	return engine, nil
}

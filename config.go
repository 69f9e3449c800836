package authcore

import (
	"errors"
	"time"
)

// Config carries every tunable of the engine. It is fixed at Build time and
// treated as immutable afterwards; tests may instantiate multiple engines
// with different secrets and clocks.
type Config struct {
	Token     TokenConfig
	Refresh   RefreshConfig
	Blacklist BlacklistConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the claim-set codec and issuer.
type TokenConfig struct {
	Secret        []byte
	SigningMethod string // "hs256" (default) or "hs512"
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessType    string // typ tag on access tokens
	RefreshType   string // typ tag on refresh tokens
}

/*
====================================
STORE CONFIG
====================================
*/

// RefreshConfig bounds refresh-store calls made by the engine.
type RefreshConfig struct {
	StoreTimeout time.Duration
}

// BlacklistConfig configures the Redis deny list.
type BlacklistConfig struct {
	RedisPrefix string
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the atomic counters and the verify latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod: "hs256",
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			AccessType:    "access",
			RefreshType:   "refresh",
		},
		Refresh: RefreshConfig{
			StoreTimeout: 3 * time.Second,
		},
		Blacklist: BlacklistConfig{
			RedisPrefix: "blacklist",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects any configuration the engine cannot run safely with.
// It is called by Build; direct use is only needed when constructing a
// Config ahead of time.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.Secret) < 32 {
		return errors.New("Token Secret must be at least 32 bytes")
	}
	if c.Token.SigningMethod != "hs256" && c.Token.SigningMethod != "hs512" {
		return errors.New("unsupported Token SigningMethod")
	}
	if c.Token.Issuer == "" {
		return errors.New("Token Issuer is required")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL <= 0 {
		return errors.New("Token RefreshTTL must be > 0")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must be greater than AccessTTL")
	}
	if c.Token.AccessType == "" {
		return errors.New("Token AccessType is required")
	}
	if c.Token.RefreshType == "" {
		return errors.New("Token RefreshType is required")
	}
	if c.Token.AccessType == c.Token.RefreshType {
		return errors.New("Token AccessType and RefreshType must differ")
	}

	// Refresh store
	if c.Refresh.StoreTimeout <= 0 {
		return errors.New("Refresh StoreTimeout must be > 0")
	}

	// Blacklist
	if c.Blacklist.RedisPrefix == "" {
		return errors.New("Blacklist RedisPrefix is required")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

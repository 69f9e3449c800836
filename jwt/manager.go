package jwt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the symmetric signing algorithm configured process-wide.
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256. Default.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS512 signs with HMAC-SHA512.
	MethodHS512 SigningMethod = "hs512"
)

var (
	// ErrSign is returned when the secret/method configuration cannot produce a
	// signature. The message never includes the secret or the claim contents.
	ErrSign = errors.New("token signing failed")
	// ErrMalformed is returned for tokens with a bad signature or structure.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired is returned by Decode only when expiry verification is requested
	// and exp has passed.
	ErrExpired = errors.New("token expired")
)

// RequiredClaims is the exact allowed claim set. A claim outside this set is a
// violation in itself; a required claim that is absent, null, or blank is too.
var RequiredClaims = map[string]struct{}{
	"sub": {},
	"jti": {},
	"iat": {},
	"exp": {},
	"typ": {},
	"iss": {},
}

// Payload is a decoded claim map. It preserves every claim present in the
// token, including ones the codec does not recognize.
type Payload map[string]any

// Subject returns the sub claim, or "" when absent or not a string.
func (p Payload) Subject() string { return p.str("sub") }

// ID returns the jti claim, or "" when absent or not a string.
func (p Payload) ID() string { return p.str("jti") }

// Type returns the typ claim, or "" when absent or not a string.
func (p Payload) Type() string { return p.str("typ") }

// Issuer returns the iss claim, or "" when absent or not a string.
func (p Payload) Issuer() string { return p.str("iss") }

// IssuedAt returns the iat claim as unix seconds, or 0 when absent.
func (p Payload) IssuedAt() int64 { return p.unix("iat") }

// ExpiresAt returns the exp claim as unix seconds, or 0 when absent.
func (p Payload) ExpiresAt() int64 { return p.unix("exp") }

func (p Payload) str(name string) string {
	v, _ := p[name].(string)
	return v
}

func (p Payload) unix(name string) int64 {
	switch v := p[name].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}

// InvalidClaims returns the names of every claim that violates the allow-list:
// claims outside [RequiredClaims], and required claims that are missing, null,
// or (for strings) empty or whitespace-only. An empty result means the claim
// set is well-formed. Names are sorted for stable assertions.
func InvalidClaims(p Payload) []string {
	var invalid []string

	for name := range p {
		if _, ok := RequiredClaims[name]; !ok {
			invalid = append(invalid, name)
		}
	}

	for name := range RequiredClaims {
		value, ok := p[name]
		if !ok || value == nil {
			invalid = append(invalid, name)
			continue
		}
		if s, isStr := value.(string); isStr && strings.TrimSpace(s) == "" {
			invalid = append(invalid, name)
		}
	}

	sort.Strings(invalid)
	return invalid
}

// Config holds the symmetric secret and the fixed token parameters. Instances
// are fixed at construction and read-only thereafter.
type Config struct {
	Secret        []byte
	SigningMethod SigningMethod
	Issuer        string
	Clock         func() time.Time
}

// Manager is the claim-set codec: it encodes, decodes, and issues signed
// tokens with one secret and one algorithm for the lifetime of the process.
type Manager struct {
	config Config
	clock  func() time.Time
}

// NewManager validates the codec configuration. The secret must be at least
// 32 bytes; shorter HMAC keys are rejected outright rather than downgraded.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("secret must be at least 32 bytes")
	}
	switch cfg.SigningMethod {
	case MethodHS256, MethodHS512:
	default:
		return nil, errors.New("unsupported signing method")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("issuer is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Manager{config: cfg, clock: clock}, nil
}

// IssuedToken carries a signed token string together with the claim values the
// caller must persist (the refresh store keys records by ID).
type IssuedToken struct {
	Token     string
	ID        string
	Subject   string
	Type      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issue mints one token of the given type for subject, valid for ttl from now.
// The jti is a fresh UUID. Persistence is the caller's responsibility.
func (m *Manager) Issue(subject, tokenType string, ttl time.Duration) (IssuedToken, error) {
	now := m.clock()
	exp := now.Add(ttl)

	payload := Payload{
		"sub": subject,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"typ": tokenType,
		"iss": m.config.Issuer,
	}

	token, err := m.Encode(payload)
	if err != nil {
		return IssuedToken{}, err
	}

	return IssuedToken{
		Token:     token,
		ID:        payload.ID(),
		Subject:   subject,
		Type:      tokenType,
		IssuedAt:  time.Unix(now.Unix(), 0),
		ExpiresAt: time.Unix(exp.Unix(), 0),
	}, nil
}

// Encode signs an arbitrary claim payload. Callers other than Issue exist only
// in tests; production tokens always carry the exact six-claim set.
func (m *Manager) Encode(p Payload) (string, error) {
	token := jwt.NewWithClaims(m.method(), jwt.MapClaims(p))
	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", ErrSign
	}
	return signed, nil
}

// Decode parses and signature-checks a token, returning the raw claim map.
// When verifyExpiry is false the exp claim is not enforced, so expired tokens
// still decode; the verification pipeline needs their claims to decide which
// verdict to return. Claim-shape validation is a separate step, [InvalidClaims].
func (m *Manager) Decode(tokenStr string, verifyExpiry bool) (Payload, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(m.clock),
	}
	if !verifyExpiry {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	parser := jwt.NewParser(options...)
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.config.Secret, nil
	})
	if err != nil {
		if verifyExpiry && errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Payload(claims), nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS512:
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

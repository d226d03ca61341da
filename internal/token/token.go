// Package token mints and validates stateless access tokens. Validation
// checks signature and expiry only and never touches storage, which is what
// lets downstream services validate locally without a round trip.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/haventools/premises-manage/core/internal/principal"
)

// Distinguishable validation failures so callers can choose
// retry-with-refresh versus hard reject.
var (
	ErrMalformed        = errors.New("token malformed")
	ErrExpired          = errors.New("token expired")
	ErrSignatureInvalid = errors.New("token signature invalid")
)

// Config holds token generation settings.
type Config struct {
	Secret    []byte
	AccessTTL time.Duration
	Issuer    string
}

// Generator mints and validates access tokens.
type Generator struct {
	config Config
	now    func() time.Time
}

// Claims are the signed claims embedded in an access token.
type Claims struct {
	jwt.RegisteredClaims
	Principal principal.Principal `json:"prn"`
}

// NewGenerator creates a Generator, applying defaults for unset fields.
func NewGenerator(config Config) *Generator {
	if config.AccessTTL == 0 {
		config.AccessTTL = 15 * time.Minute
	}
	if config.Issuer == "" {
		config.Issuer = "premises-manage"
	}
	return &Generator{config: config, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// GenerateAccess mints a signed access token for p.
func (g *Generator) GenerateAccess(p principal.Principal) (string, time.Time, error) {
	if err := p.Validate(); err != nil {
		return "", time.Time{}, fmt.Errorf("generate access token: %w", err)
	}

	now := g.now()
	expiresAt := now.Add(g.config.AccessTTL)
	entropy := ulid.Monotonic(rand.Reader, 0)
	jti := ulid.MustNew(ulid.Timestamp(now), entropy).String()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    g.config.Issuer,
			Subject:   p.Subject(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Principal: p,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(g.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

// ValidateAccess verifies signature and expiry and returns the embedded
// principal and expiry. Storage is never consulted.
func (g *Generator) ValidateAccess(tokenString string) (principal.Principal, time.Time, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return g.config.Secret, nil
	}, jwt.WithTimeFunc(g.now))
	if err != nil {
		return principal.Principal{}, time.Time{}, classify(err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return principal.Principal{}, time.Time{}, ErrMalformed
	}
	if err := claims.Principal.Validate(); err != nil {
		return principal.Principal{}, time.Time{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return claims.Principal, claims.ExpiresAt.Time, nil
}

// classify maps jwt/v5 parse failures onto the package's error kinds.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

// NewRefreshToken returns a 256-bit opaque random token. Only its hash is
// ever persisted.
func NewRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

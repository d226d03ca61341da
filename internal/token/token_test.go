package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haventools/premises-manage/core/internal/principal"
)

func newTestGenerator() *Generator {
	return NewGenerator(Config{
		Secret:    []byte("test-secret-for-jwt"),
		AccessTTL: 15 * time.Minute,
		Issuer:    "test",
	})
}

func testActor() principal.Principal {
	return principal.NewActor("act-1", "prem-1", "role-1", "acc-1", principal.AccountTypeUser)
}

func TestNewGenerator_Defaults(t *testing.T) {
	g := NewGenerator(Config{Secret: []byte("s")})
	assert.Equal(t, 15*time.Minute, g.config.AccessTTL)
	assert.Equal(t, "premises-manage", g.config.Issuer)
}

func TestValidateAccess_RoundTrip(t *testing.T) {
	g := newTestGenerator()

	for _, p := range []principal.Principal{
		principal.NewAccount("acc-1", principal.AccountTypeUser),
		testActor(),
		principal.NewInternal("svc-1"),
	} {
		tok, expiresAt, err := g.GenerateAccess(p)
		require.NoError(t, err)
		require.NotEmpty(t, tok)
		assert.True(t, expiresAt.After(time.Now()))

		got, gotExpiry, err := g.ValidateAccess(tok)
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.WithinDuration(t, expiresAt, gotExpiry, time.Second)
	}
}

func TestValidateAccess_Expired(t *testing.T) {
	g := newTestGenerator()

	tok, _, err := g.GenerateAccess(testActor())
	require.NoError(t, err)

	// Move the validator's clock past expiry instead of sleeping.
	g.WithClock(func() time.Time { return time.Now().Add(16 * time.Minute) })

	_, _, err = g.ValidateAccess(tok)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestValidateAccess_WrongSecret(t *testing.T) {
	g1 := newTestGenerator()
	g2 := NewGenerator(Config{Secret: []byte("different-secret")})

	tok, _, err := g1.GenerateAccess(testActor())
	require.NoError(t, err)

	_, _, err = g2.ValidateAccess(tok)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestValidateAccess_Garbage(t *testing.T) {
	g := newTestGenerator()

	_, _, err := g.ValidateAccess("not.a.jwt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)

	_, _, err = g.ValidateAccess("")
	assert.Error(t, err)
}

func TestGenerateAccess_InvalidPrincipal(t *testing.T) {
	g := newTestGenerator()
	_, _, err := g.GenerateAccess(principal.Principal{})
	assert.Error(t, err)
}

func TestNewRefreshToken_Opaque(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		tok, err := NewRefreshToken()
		require.NoError(t, err)
		require.NotEmpty(t, tok)
		assert.False(t, seen[tok], "refresh tokens must be unique")
		seen[tok] = true
	}
}

package tokencheck

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signed builds an HS256 token; the key is irrelevant because nothing here
// verifies signatures.
func signed(t *testing.T, claims jwt.Claims) string {
	t.Helper()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)

	return tok
}

func tokenExpiringAt(t *testing.T, exp time.Time) string {
	t.Helper()

	return signed(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
		Email:            "a@b.com",
	})
}

func TestValid_FutureExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := tokenExpiringAt(t, now.Add(time.Hour))

	assert.True(t, Valid(tok, now))
}

func TestValid_PastExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := tokenExpiringAt(t, now.Add(-time.Second))

	assert.False(t, Valid(tok, now))
}

func TestValid_ExpiryEqualsNow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := tokenExpiringAt(t, now)

	assert.False(t, Valid(tok, now))
}

func TestValid_MissingExpiry(t *testing.T) {
	tok := signed(t, Claims{Email: "a@b.com"})

	assert.False(t, Valid(tok, time.Now()))

	_, ok := Expiry(tok)
	assert.False(t, ok)
}

func TestValid_Undecodable(t *testing.T) {
	for _, tok := range []string{"", "   ", "not-a-jwt", "a.b.c", "eyJhbGciOiJIUzI1NiJ9.%%%.sig"} {
		assert.False(t, Valid(tok, time.Now()), "token %q", tok)
	}
}

func TestValid_IgnoresSignature(t *testing.T) {
	tok := tokenExpiringAt(t, time.Now().Add(time.Hour))

	// Corrupt the signature segment; the claims are still readable.
	tampered := tok[:len(tok)-4] + "AAAA"
	assert.True(t, IsValid(tampered))
}

func TestExpiry_RoundsToSeconds(t *testing.T) {
	exp := time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)
	got, ok := Expiry(tokenExpiringAt(t, exp))

	require.True(t, ok)
	assert.True(t, got.Equal(exp))
}

func TestEmail(t *testing.T) {
	tok := tokenExpiringAt(t, time.Now().Add(time.Hour))

	assert.Equal(t, "a@b.com", Email(tok))
	assert.Empty(t, Email("garbage"))
	assert.Empty(t, Email(signed(t, jwt.RegisteredClaims{Subject: "x"})))
}

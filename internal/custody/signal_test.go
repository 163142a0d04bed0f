package custody

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognitechbridge/ctb-session/internal/broker"
)

func TestEmailSignal(t *testing.T) {
	s := NewEmailSignal()

	var seen []string

	cancel := s.Subscribe(func(v string) { seen = append(seen, v) })

	s.Set("a@b.com")
	s.Set("a@b.com")
	s.Set("")

	cancel()
	s.Set("c@d.com")

	assert.Equal(t, []string{"", "a@b.com", ""}, seen)
	assert.Equal(t, "c@d.com", s.Get())
}

func TestEmailSignal_OnTokenChange(t *testing.T) {
	id, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp":   time.Now().Add(time.Hour).Unix(),
		"email": "a@b.com",
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	s := NewEmailSignal()

	s.OnTokenChange(broker.TokenSet{IDToken: id})
	assert.Equal(t, "a@b.com", s.Get())

	s.OnTokenChange(broker.TokenSet{})
	assert.Empty(t, s.Get())
}

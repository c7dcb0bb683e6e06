package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuthenticator_RoundTrip(t *testing.T) {
	a := NewJWTAuthenticator("secret", "storefront", "storefront")

	tok, err := a.GenerateToken(42)
	require.NoError(t, err)

	id, err := a.UserIDFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestJWTAuthenticator_NumericSubject(t *testing.T) {
	a := NewJWTAuthenticator("secret", "", "")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": 7,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	id, err := a.UserIDFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestJWTAuthenticator_Rejects(t *testing.T) {
	a := NewJWTAuthenticator("secret", "storefront", "storefront")

	other, err := NewJWTAuthenticator("other", "storefront", "storefront").GenerateToken(1)
	require.NoError(t, err)
	_, err = a.UserIDFromToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongAud, err := NewJWTAuthenticator("secret", "elsewhere", "storefront").GenerateToken(1)
	require.NoError(t, err)
	_, err = a.UserIDFromToken(wrongAud)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewJWTAuthenticator("secret", "storefront", "storefront")
	expired.now = func() time.Time { return time.Now().Add(-96 * time.Hour) }
	old, err := expired.GenerateToken(1)
	require.NoError(t, err)
	_, err = a.UserIDFromToken(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.UserIDFromToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

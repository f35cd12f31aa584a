package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("a-secret", "r-secret", "credits-test", time.Minute, time.Hour)
	pair, err := tm.GeneratePair("user-1", "SALES")
	require.NoError(t, err)

	c, err := tm.ParseAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.UserID)
	assert.Equal(t, "SALES", c.Role)

	c, err = tm.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.UserID)

	_, err = tm.ParseAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = tm.ParseRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_Expired(t *testing.T) {
	t.Parallel()

	tm := NewTokenManager("a", "r", "", time.Minute, time.Hour)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	pair, err := tm.GeneratePair("user-1", "USER")
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ParseAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_WrongIssuer(t *testing.T) {
	t.Parallel()

	a := NewTokenManager("s", "r", "one", time.Minute, time.Hour)
	b := NewTokenManager("s", "r", "two", time.Minute, time.Hour)
	pair, err := a.GeneratePair("user-1", "USER")
	require.NoError(t, err)

	_, err = b.ParseAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	t.Parallel()

	h, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NoError(t, VerifyPassword("s3cret!", h))
	assert.Error(t, VerifyPassword("nope", h))
}

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallerContext(t *testing.T) {
	_, ok := CallerFrom(context.Background())
	assert.False(t, ok)

	ctx := WithCaller(context.Background(), Caller{UserID: "alice"})
	c, ok := CallerFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "alice", c.UserID)

	_, ok = CallerFrom(WithCaller(context.Background(), Caller{}))
	assert.False(t, ok)
}

func TestCallerClaimsRoundTrip(t *testing.T) {
	secret := []byte("shared-secret")
	token, err := SignCallerClaims(secret, "alice", time.Minute)
	require.NoError(t, err)

	require.NoError(t, VerifyCallerClaims(secret, token, "alice"))
	assert.ErrorIs(t, VerifyCallerClaims(secret, token, "bob"), ErrSubjectMismatch)
	assert.ErrorIs(t, VerifyCallerClaims([]byte("other"), token, "alice"), ErrInvalidClaims)
	assert.ErrorIs(t, VerifyCallerClaims(secret, "garbage", "alice"), ErrInvalidClaims)
}

func TestExpiredClaimsRejected(t *testing.T) {
	secret := []byte("shared-secret")
	token, err := SignCallerClaims(secret, "alice", -time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, VerifyCallerClaims(secret, token, "alice"), ErrInvalidClaims)
}

func TestSignRequiresSecret(t *testing.T) {
	_, err := SignCallerClaims(nil, "alice", time.Minute)
	assert.Error(t, err)
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthServiceDisabled(t *testing.T) {
	auth := NewAuthService("")

	assert.False(t, auth.Enabled())
	assert.NoError(t, auth.VerifyAPIKey(context.Background(), ""))
	assert.NoError(t, auth.VerifyAPIKey(context.Background(), "anything"))
}

func TestAuthServiceVerify(t *testing.T) {
	hash, err := HashAPIKey("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	auth := NewAuthService(hash)
	require.True(t, auth.Enabled())

	assert.NoError(t, auth.VerifyAPIKey(context.Background(), "s3cret"))
	assert.ErrorIs(t, auth.VerifyAPIKey(context.Background(), ""), ErrInvalidAPIKey)
	assert.ErrorIs(t, auth.VerifyAPIKey(context.Background(), "wrong"), ErrInvalidAPIKey)
}

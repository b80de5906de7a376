package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret, challenge string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(challenge))
	return hex.EncodeToString(h.Sum(nil))
}

func TestAuthHandlerAcceptsValidSignature(t *testing.T) {
	auth := NewAuthHandler("secret")

	challenge, err := auth.GenerateChallenge()
	require.NoError(t, err)
	assert.Len(t, challenge, 64)

	client := &Client{ID: "c1", Challenge: challenge}
	result := auth.HandleAuthResponse(client, sign("secret", challenge))

	assert.True(t, result.Success)
	assert.True(t, client.Authenticated)
	assert.Empty(t, client.Challenge)
}

func TestAuthHandlerRejectsBadSignature(t *testing.T) {
	auth := NewAuthHandler("secret")
	client := &Client{ID: "c1", Challenge: "deadbeef"}

	result := auth.HandleAuthResponse(client, sign("wrong-secret", "deadbeef"))

	assert.False(t, result.Success)
	assert.False(t, client.Authenticated)
	assert.Equal(t, 1, client.AuthAttempts)
}

func TestAuthHandlerBlocksAfterThreeFailures(t *testing.T) {
	auth := NewAuthHandler("secret")
	client := &Client{ID: "c1", Challenge: "deadbeef"}

	var result AuthResult
	for i := 0; i < 3; i++ {
		result = auth.HandleAuthResponse(client, "bogus")
	}

	assert.False(t, result.Success)
	assert.Equal(t, "Too many failed attempts", result.Message)
}

func TestAuthHandlerRequiresChallenge(t *testing.T) {
	auth := NewAuthHandler("secret")
	client := &Client{ID: "c1"}

	result := auth.HandleAuthResponse(client, "anything")
	assert.False(t, result.Success)
}

func TestChallengesAreUnique(t *testing.T) {
	auth := NewAuthHandler("secret")

	a, err := auth.GenerateChallenge()
	require.NoError(t, err)
	b, err := auth.GenerateChallenge()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

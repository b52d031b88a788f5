package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeTokenLifetime(t *testing.T) {
	issuedAt := time.Now().Truncate(time.Second)
	expiresAt := issuedAt.Add(time.Hour)

	iat, exp, ok := decodeTokenLifetime(signedToken(t, issuedAt, expiresAt))
	require.True(t, ok)
	require.Equal(t, issuedAt.Unix(), iat.Unix())
	require.Equal(t, expiresAt.Unix(), exp.Unix())
}

func TestDecodeTokenLifetimeOpaqueToken(t *testing.T) {
	_, _, ok := decodeTokenLifetime("not-a-jwt")
	require.False(t, ok)
}

func TestDecodeTokenLifetimeMissingClaims(t *testing.T) {
	// Structurally a JWT but without iat/exp
	_, _, ok := decodeTokenLifetime("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0.c2ln")
	require.False(t, ok)
}

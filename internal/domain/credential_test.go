package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCredentialStale(t *testing.T) {
	now := time.Date(2025, time.November, 2, 12, 0, 0, 0, time.UTC)
	skew := 5 * time.Minute

	fresh := Credential{ExpiresAt: now.Add(time.Hour).Unix()}
	require.False(t, fresh.Stale(now, skew))

	expired := Credential{ExpiresAt: now.Add(-time.Minute).Unix()}
	require.True(t, expired.Stale(now, skew))

	// Inside the safety skew counts as stale even though the token is
	// technically still valid.
	nearExpiry := Credential{ExpiresAt: now.Add(2 * time.Minute).Unix()}
	require.True(t, nearExpiry.Stale(now, skew))

	zero := Credential{}
	require.True(t, zero.Stale(now, skew))
}

package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashVerifyRoundtrip(t *testing.T) {
	salt, err := RandBytes(saltLen)
	require.NoError(t, err)

	h := HashPassword([]byte("pw123"), salt)
	require.Len(t, h, hashKeyLen)
	require.True(t, VerifyPassword([]byte("pw123"), salt, h))
	require.False(t, VerifyPassword([]byte("pw124"), salt, h))
}

func TestSaltChangesHash(t *testing.T) {
	s1, _ := RandBytes(saltLen)
	s2, _ := RandBytes(saltLen)
	require.NotEqual(t, HashPassword([]byte("pw"), s1), HashPassword([]byte("pw"), s2))
}

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewPasswordHasher_RejectsCostOutOfRange(t *testing.T) {
	_, err := NewPasswordHasher(bcrypt.MaxCost + 1)
	assert.Error(t, err)
}

func TestPasswordHasher_HashAndCheck(t *testing.T) {
	h, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	hash, err := h.Hash("secret-pass")
	require.NoError(t, err)
	assert.True(t, h.Check("secret-pass", hash))
	assert.False(t, h.Check("other-pass", hash))
	assert.False(t, h.Check("secret-pass", "not-a-hash"))
}

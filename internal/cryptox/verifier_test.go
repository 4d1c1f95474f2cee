package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveAuthKey_Deterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")
	k1 := DeriveAuthKey([]byte("secret"), salt)
	k2 := DeriveAuthKey([]byte("secret"), salt)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)
}

func TestDeriveAuthKey_DiffersByInput(t *testing.T) {
	salt := []byte("0123456789abcdef")
	base := DeriveAuthKey([]byte("secret"), salt)
	assert.NotEqual(t, base, DeriveAuthKey([]byte("secret2"), salt))
	assert.NotEqual(t, base, DeriveAuthKey([]byte("secret"), []byte("fedcba9876543210")))
}

func TestMakeVerifier(t *testing.T) {
	key := DeriveAuthKey([]byte("secret"), []byte("0123456789abcdef"))
	v1 := MakeVerifier(key)
	v2 := MakeVerifier(key)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1, 32)
	assert.NotEqual(t, key, v1)
}

package keyring

import (
	"errors"
	"testing"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSalt = []byte("0123456789abcdef")

func TestDeriveKeyPair_Deterministic(t *testing.T) {
	d := NewDeriver()

	kp1, err := d.DeriveKeyPair("correct horse battery staple", testSalt)
	require.NoError(t, err)
	kp2, err := d.DeriveKeyPair("correct horse battery staple", testSalt)
	require.NoError(t, err)

	assert.Equal(t, kp1.PublicJWK, kp2.PublicJWK)
	assert.Equal(t, kp1.Private.Bytes(), kp2.Private.Bytes())
	assert.Equal(t, kp1.SaltBase64, kp2.SaltBase64)
}

func TestDeriveKeyPair_DifferentInputsDifferentKeys(t *testing.T) {
	d := NewDeriver()

	base, err := d.DeriveKeyPair("password-one", testSalt)
	require.NoError(t, err)

	otherPw, err := d.DeriveKeyPair("password-two", testSalt)
	require.NoError(t, err)
	assert.NotEqual(t, base.PublicJWK, otherPw.PublicJWK)

	otherSalt, err := d.DeriveKeyPair("password-one", []byte("fedcba9876543210"))
	require.NoError(t, err)
	assert.NotEqual(t, base.PublicJWK, otherSalt.PublicJWK)
}

func TestDeriveKeyPair_EmptyPasswordFailsFast(t *testing.T) {
	d := NewDeriver()
	_, err := d.DeriveKeyPair("", testSalt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrKeyDerivation))
}

func TestDeriveKeyPair_UnicodePassword(t *testing.T) {
	d := NewDeriver()
	kp1, err := d.DeriveKeyPair("пароль-🔐-密码", testSalt)
	require.NoError(t, err)
	kp2, err := d.DeriveKeyPair("пароль-🔐-密码", testSalt)
	require.NoError(t, err)
	assert.Equal(t, kp1.PublicJWK, kp2.PublicJWK)
}

func TestDeriveKeyPair_BadSaltLength(t *testing.T) {
	d := NewDeriver()
	_, err := d.DeriveKeyPair("pw", []byte("short"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrKeyDerivation))
}

func TestGenerateSalt(t *testing.T) {
	s1, err := GenerateSalt()
	require.NoError(t, err)
	s2, err := GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, s1, SaltSize)
	assert.NotEqual(t, s1, s2)
}

func TestVerifyPublicKey(t *testing.T) {
	d := NewDeriver()
	kp, err := d.DeriveKeyPair("pw", testSalt)
	require.NoError(t, err)
	other, err := d.DeriveKeyPair("other", testSalt)
	require.NoError(t, err)

	assert.True(t, VerifyPublicKey(kp.PublicJWK, kp.PublicJWK))
	assert.False(t, VerifyPublicKey(kp.PublicJWK, other.PublicJWK))

	missing := kp.PublicJWK
	missing.Y = ""
	assert.False(t, VerifyPublicKey(missing, kp.PublicJWK))
	assert.False(t, VerifyPublicKey(kp.PublicJWK, missing))
}

// Both import strategies must produce the same public point and
// interoperable agreement for the same scalar.
func TestImporters_Equivalent(t *testing.T) {
	d := make([]byte, 32)
	d[31] = 42

	native, err := nativeImporter{}.Import(d)
	require.NoError(t, err)
	coord, err := coordinateImporter{}.Import(d)
	require.NoError(t, err)

	assert.Equal(t, native.PublicJWK, coord.PublicJWK)

	// Cross-strategy ECDH: native private with coordinate public and the
	// other way round must agree.
	e := make([]byte, 32)
	e[31] = 7
	peerNative, err := nativeImporter{}.Import(e)
	require.NoError(t, err)
	peerCoord, err := coordinateImporter{}.Import(e)
	require.NoError(t, err)

	s1, err := native.Private.ECDH(peerCoord.Public)
	require.NoError(t, err)
	s2, err := coord.Private.ECDH(peerNative.Public)
	require.NoError(t, err)
	s3, err := peerCoord.Private.ECDH(native.Public)
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, s1, s3)
}

func TestParsePublicJWK_RoundTrip(t *testing.T) {
	der := NewDeriver()
	kp, err := der.DeriveKeyPair("roundtrip", testSalt)
	require.NoError(t, err)

	pub, err := ParsePublicJWK(kp.PublicJWK)
	require.NoError(t, err)
	assert.Equal(t, 0, kp.Public.X.Cmp(pub.X))
	assert.Equal(t, 0, kp.Public.Y.Cmp(pub.Y))

	_, err = ParsePublicJWK(PublicKeyJWK{Kty: "EC", Crv: "P-256"})
	require.Error(t, err)
}

func TestNewPrivateKey_FromStoredScalar(t *testing.T) {
	der := NewDeriver()
	kp, err := der.DeriveKeyPair("persisted", testSalt)
	require.NoError(t, err)

	restored, err := NewPrivateKey(kp.Private.Bytes())
	require.NoError(t, err)
	assert.Equal(t, kp.Private.Bytes(), restored.Bytes())
}

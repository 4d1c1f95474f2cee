// Package keyring derives reproducible P-256 key pairs from user passwords.
//
// The same (password, salt) pair yields a bit-identical key pair on every
// call and on every device, which is what lets a user decrypt their history
// after logging in somewhere new. The derivation is argon2id over the
// password and salt, reduced onto the curve's scalar field.
package keyring

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/nkrylov/cipherchat/internal/common"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Fixed forever: changing any of them changes every
// key pair ever derived.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// SaltSize is the size of the per-user random salt, generated once at
// key-provisioning time and stored server-side next to the public key.
const SaltSize = 16

// PublicKeyJWK is the transmissible form of a public key: curve name plus
// base64url-encoded affine coordinates (JOSE style, unpadded).
type PublicKeyJWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// KeyPair bundles the private scalar with its public point and the
// serialized forms callers need. The private half never leaves the client
// process except into the local key store.
type KeyPair struct {
	Private    *PrivateKey
	Public     *PublicKey
	PublicJWK  PublicKeyJWK
	SaltBase64 string
}

// Deriver produces key pairs. It picks a scalar-import strategy once, at
// construction, by probing whether the platform's native ECDH key import
// accepts a raw scalar (see importer.go).
type Deriver struct {
	importer scalarImporter
}

// NewDeriver returns a Deriver with the best available import strategy.
func NewDeriver() *Deriver {
	return &Deriver{importer: probeImporter()}
}

// GenerateSalt returns SaltSize cryptographically-random bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: salt generation: %v", common.ErrKeyDerivation, err)
	}
	return salt, nil
}

// DeriveKeyPair deterministically derives a P-256 key pair from a password
// and salt. An empty password fails fast rather than silently hashing the
// empty string. Arbitrary Unicode passwords are fine; argon2 operates on
// the raw UTF-8 bytes.
//
// The 32-byte argon2id output is mapped onto the scalar field as
// (seed mod (n-1)) + 1, which lands in [1, n-1] and so is always a valid,
// non-zero private scalar.
func (d *Deriver) DeriveKeyPair(password string, salt []byte) (*KeyPair, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", common.ErrKeyDerivation)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", common.ErrKeyDerivation, SaltSize, len(salt))
	}

	seed := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	scalar := reduceToScalar(seed)
	common.WipeByteArray(seed)

	kp, err := d.importer.Import(scalar)
	if err != nil {
		return nil, fmt.Errorf("%w: scalar import: %v", common.ErrKeyDerivation, err)
	}

	kp.SaltBase64 = base64.StdEncoding.EncodeToString(salt)
	return kp, nil
}

// reduceToScalar maps a 32-byte seed to a valid private scalar,
// big-endian, left-padded to 32 bytes.
func reduceToScalar(seed []byte) []byte {
	n := curveOrder()
	nMinus1 := new(big.Int).Sub(n, big.NewInt(1))

	k := new(big.Int).SetBytes(seed)
	k.Mod(k, nMinus1)
	k.Add(k, big.NewInt(1))

	return k.FillBytes(make([]byte, 32))
}

// VerifyPublicKey reports whether a freshly derived public key matches a
// stored one, comparing only the public coordinates. This is how a wrong
// password is detected without ever touching private material. Missing
// coordinates on either side make it false.
func VerifyPublicKey(candidate, stored PublicKeyJWK) bool {
	if candidate.X == "" || candidate.Y == "" || stored.X == "" || stored.Y == "" {
		return false
	}
	return candidate.X == stored.X && candidate.Y == stored.Y
}

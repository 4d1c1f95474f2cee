package keyring

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/nkrylov/cipherchat/internal/common"
)

// PrivateKey holds the private scalar together with the agreement strategy
// used to combine it with a peer's public point. When the native crypto/ecdh
// import path accepted the scalar, native is set and agreement goes through
// it; otherwise agreement falls back to explicit curve arithmetic.
type PrivateKey struct {
	d      []byte
	native *ecdh.PrivateKey
}

// NewPrivateKey reconstructs a PrivateKey from a raw 32-byte scalar, e.g.
// one loaded from the local key store.
func NewPrivateKey(d []byte) (*PrivateKey, error) {
	kp, err := probeImporter().Import(d)
	if err != nil {
		return nil, err
	}
	return kp.Private, nil
}

// Bytes returns the raw big-endian scalar for local persistence. It must
// never be placed in a remote-bound structure.
func (k *PrivateKey) Bytes() []byte {
	out := make([]byte, len(k.d))
	copy(out, k.d)
	return out
}

// ECDH computes the shared secret with the peer's public point: the
// x-coordinate of d*P, left-padded to 32 bytes. Both strategies produce the
// same bytes, so key pairs imported by different strategies interoperate.
func (k *PrivateKey) ECDH(peer *PublicKey) ([]byte, error) {
	if peer == nil || peer.X == nil || peer.Y == nil {
		return nil, fmt.Errorf("%w: peer public key is incomplete", common.ErrEncryption)
	}

	if k.native != nil {
		peerKey, err := peer.ecdhKey()
		if err != nil {
			return nil, err
		}
		secret, err := k.native.ECDH(peerKey)
		if err != nil {
			return nil, fmt.Errorf("%w: ecdh: %v", common.ErrEncryption, err)
		}
		return secret, nil
	}

	curve := elliptic.P256()
	if !curve.IsOnCurve(peer.X, peer.Y) {
		return nil, fmt.Errorf("%w: peer point is not on the curve", common.ErrEncryption)
	}
	x, _ := curve.ScalarMult(peer.X, peer.Y, k.d)
	if x.Sign() == 0 {
		return nil, fmt.Errorf("%w: ecdh produced the point at infinity", common.ErrEncryption)
	}
	return x.FillBytes(make([]byte, 32)), nil
}

// PublicKey is a P-256 public point in affine coordinates.
type PublicKey struct {
	X, Y *big.Int
}

// JWK serializes the point for transmission/storage.
func (p *PublicKey) JWK() PublicKeyJWK {
	return PublicKeyJWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(p.X.FillBytes(make([]byte, 32))),
		Y:   base64.RawURLEncoding.EncodeToString(p.Y.FillBytes(make([]byte, 32))),
	}
}

// ParsePublicJWK decodes a JWK back into a point and checks it lies on the
// curve.
func ParsePublicJWK(jwk PublicKeyJWK) (*PublicKey, error) {
	if jwk.X == "" || jwk.Y == "" {
		return nil, fmt.Errorf("%w: jwk is missing coordinates", common.ErrEncryption)
	}
	xb, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("%w: jwk x: %v", common.ErrEncryption, err)
	}
	yb, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("%w: jwk y: %v", common.ErrEncryption, err)
	}
	pub := &PublicKey{X: new(big.Int).SetBytes(xb), Y: new(big.Int).SetBytes(yb)}
	if !elliptic.P256().IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("%w: point is not on the curve", common.ErrEncryption)
	}
	return pub, nil
}

// ecdhKey converts the point to the crypto/ecdh representation
// (uncompressed SEC1 encoding).
func (p *PublicKey) ecdhKey() (*ecdh.PublicKey, error) {
	raw := make([]byte, 65)
	raw[0] = 4
	p.X.FillBytes(raw[1:33])
	p.Y.FillBytes(raw[33:65])
	key, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: public key import: %v", common.ErrEncryption, err)
	}
	return key, nil
}

// curveOrder returns the order of the P-256 base point.
func curveOrder() *big.Int {
	return new(big.Int).Set(elliptic.P256().Params().N)
}

package keyring

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"errors"
	"math/big"
)

// scalarImporter turns a raw 32-byte private scalar into a usable key pair.
//
// Two strategies exist because some platform crypto libraries reject raw
// scalar import. The native strategy goes through crypto/ecdh; the
// coordinate strategy computes the public point explicitly with curve
// arithmetic and builds the key from raw (d, x, y) components. The choice is
// made once by a capability probe, not per call.
type scalarImporter interface {
	Import(d []byte) (*KeyPair, error)
}

// probeScalar is a known-good scalar (the value 1) used to test the native
// import path at construction time.
var probeScalar = func() []byte {
	b := make([]byte, 32)
	b[31] = 1
	return b
}()

func probeImporter() scalarImporter {
	if _, err := ecdh.P256().NewPrivateKey(probeScalar); err != nil {
		return coordinateImporter{}
	}
	return nativeImporter{}
}

// nativeImporter imports the scalar through crypto/ecdh and reads the public
// coordinates back out of the uncompressed point encoding.
type nativeImporter struct{}

func (nativeImporter) Import(d []byte) (*KeyPair, error) {
	priv, err := ecdh.P256().NewPrivateKey(d)
	if err != nil {
		return nil, err
	}

	raw := priv.PublicKey().Bytes() // 0x04 || X || Y
	if len(raw) != 65 || raw[0] != 4 {
		return nil, errors.New("unexpected public point encoding")
	}
	pub := &PublicKey{
		X: new(big.Int).SetBytes(raw[1:33]),
		Y: new(big.Int).SetBytes(raw[33:65]),
	}

	scalar := make([]byte, len(d))
	copy(scalar, d)

	return &KeyPair{
		Private:   &PrivateKey{d: scalar, native: priv},
		Public:    pub,
		PublicJWK: pub.JWK(),
	}, nil
}

// coordinateImporter computes the public point as d*G using explicit curve
// arithmetic. Agreement on the resulting PrivateKey uses ScalarMult rather
// than crypto/ecdh.
type coordinateImporter struct{}

func (coordinateImporter) Import(d []byte) (*KeyPair, error) {
	curve := elliptic.P256()

	k := new(big.Int).SetBytes(d)
	if k.Sign() == 0 || k.Cmp(curve.Params().N) >= 0 {
		return nil, errors.New("scalar out of range")
	}

	x, y := curve.ScalarBaseMult(d)
	pub := &PublicKey{X: x, Y: y}

	scalar := make([]byte, len(d))
	copy(scalar, d)

	return &KeyPair{
		Private:   &PrivateKey{d: scalar},
		Public:    pub,
		PublicJWK: pub.JWK(),
	}, nil
}

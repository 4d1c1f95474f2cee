// Package cryptox implements message encryption: ECDH key agreement between
// two parties' P-256 keys and AES-256-GCM over the message body.
//
// Ciphertext framing is {ciphertext, nonce}, both base64. A fresh random
// 96-bit nonce is generated per encryption, so the same plaintext encrypted
// twice never yields the same ciphertext, and GCM's authentication tag turns
// any tampering into a decryption error instead of corrupted plaintext.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"

	"github.com/nkrylov/cipherchat/internal/common"
	"github.com/nkrylov/cipherchat/internal/keyring"
	"golang.org/x/crypto/hkdf"
)

// nonceSize is the GCM nonce size: 96 bits.
const nonceSize = 12

// hkdfInfo domain-separates message keys from any other use of the same
// shared secret.
var hkdfInfo = []byte("cipherchat message key v1")

// Payload is the wire form of an encrypted message body.
type Payload struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

// SymmetricKey is a non-extractable AES-256-GCM key. The raw key bytes are
// consumed at construction and never exposed, so correctness across parties
// is checked functionally (encrypt with one, decrypt with the other), not by
// byte comparison.
type SymmetricKey struct {
	aead cipher.AEAD
}

func newSymmetricKey(raw []byte) (*SymmetricKey, error) {
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: cipher init: %v", common.ErrEncryption, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm init: %v", common.ErrEncryption, err)
	}
	return &SymmetricKey{aead: aead}, nil
}

// GenerateKeyPair creates an ephemeral P-256 key pair with platform-native
// key generation, for sessions where a password-derived identity is not
// required.
func GenerateKeyPair() (*keyring.KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: key generation: %v", common.ErrEncryption, err)
	}

	raw := priv.PublicKey().Bytes()
	pub := &keyring.PublicKey{
		X: new(big.Int).SetBytes(raw[1:33]),
		Y: new(big.Int).SetBytes(raw[33:65]),
	}

	kp, err := keyring.NewPrivateKey(priv.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: key generation: %v", common.ErrEncryption, err)
	}

	return &keyring.KeyPair{Private: kp, Public: pub, PublicJWK: pub.JWK()}, nil
}

// ExportPublicKey serializes a public key into its transmissible JWK form.
func ExportPublicKey(pub *keyring.PublicKey) (keyring.PublicKeyJWK, error) {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return keyring.PublicKeyJWK{}, fmt.Errorf("%w: public key is incomplete", common.ErrEncryption)
	}
	return pub.JWK(), nil
}

// DeriveSharedSecret runs ECDH between our private key and the peer's public
// key, then feeds the shared point through HKDF-SHA256 into a 256-bit
// symmetric key. Agreement is commutative: (A.priv, B.pub) and
// (B.priv, A.pub) produce keys that decrypt each other's ciphertext.
func DeriveSharedSecret(own *keyring.PrivateKey, peer *keyring.PublicKey) (*SymmetricKey, error) {
	if own == nil {
		return nil, fmt.Errorf("%w: private key is nil", common.ErrEncryption)
	}

	secret, err := own.ECDH(peer)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(secret)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("%w: hkdf: %v", common.ErrEncryption, err)
	}
	defer common.WipeByteArray(key)

	return newSymmetricKey(key)
}

// Encrypt seals the UTF-8 plaintext under the key with a fresh random nonce.
// Empty strings and arbitrary Unicode need no special casing.
func Encrypt(plaintext string, key *SymmetricKey) (*Payload, error) {
	if key == nil || key.aead == nil {
		return nil, fmt.Errorf("%w: symmetric key is nil", common.ErrEncryption)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce generation: %v", common.ErrEncryption, err)
	}

	ciphertext := key.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return &Payload{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// Decrypt reverses Encrypt. A wrong key, truncated or corrupted ciphertext,
// corrupted nonce, or invalid base64 all surface as ErrDecryption, never as
// silently-returned garbage.
func Decrypt(ciphertextB64, nonceB64 string, key *SymmetricKey) (string, error) {
	if key == nil || key.aead == nil {
		return "", fmt.Errorf("%w: symmetric key is nil", common.ErrDecryption)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext encoding: %v", common.ErrDecryption, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return "", fmt.Errorf("%w: nonce encoding: %v", common.ErrDecryption, err)
	}
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: nonce must be %d bytes, got %d", common.ErrDecryption, nonceSize, len(nonce))
	}

	plaintext, err := key.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	return string(plaintext), nil
}

// EncryptBytes seals an arbitrary binary blob (attachments) under the key.
func EncryptBytes(plaintext []byte, key *SymmetricKey) (ciphertext, nonce []byte, err error) {
	if key == nil || key.aead == nil {
		return nil, nil, fmt.Errorf("%w: symmetric key is nil", common.ErrEncryption)
	}
	nonce = make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("%w: nonce generation: %v", common.ErrEncryption, err)
	}
	return key.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// DecryptBytes reverses EncryptBytes.
func DecryptBytes(ciphertext, nonce []byte, key *SymmetricKey) ([]byte, error) {
	if key == nil || key.aead == nil {
		return nil, fmt.Errorf("%w: symmetric key is nil", common.ErrDecryption)
	}
	plaintext, err := key.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	return plaintext, nil
}

// NewRandomKey returns a fresh random symmetric key, used for attachment
// blobs where the key itself travels inside an encrypted message. The raw
// bytes are returned too so they can be transmitted; the caller must wipe
// them after use.
func NewRandomKey() (*SymmetricKey, []byte, error) {
	raw := common.GenerateRandByteArray(32)
	key, err := newSymmetricKey(raw)
	if err != nil {
		return nil, nil, err
	}
	return key, raw, nil
}

// KeyFromBytes reconstructs a symmetric key from raw bytes received inside
// an encrypted message (attachment keys).
func KeyFromBytes(raw []byte) (*SymmetricKey, error) {
	return newSymmetricKey(raw)
}

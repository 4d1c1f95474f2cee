package cryptox

import (
	"crypto/sha256"

	"golang.org/x/crypto/argon2"
)

// Login-verifier derivation. The server never sees the password: the client
// stretches it with argon2id over a per-user auth salt (separate from the
// key-derivation salt) and sends only a hash of the result. Parameters are
// fixed; changing them locks every account out.
const (
	authTime    = 1
	authMemory  = 64 * 1024
	authThreads = 4
	authKeyLen  = 32
)

// DeriveAuthKey stretches a password into the login master key.
func DeriveAuthKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, authTime, authMemory, authThreads, authKeyLen)
}

// MakeVerifier hashes the auth key into the value stored server-side and
// compared at login.
func MakeVerifier(authKey []byte) []byte {
	hash := sha256.Sum256(authKey)
	return hash[:]
}

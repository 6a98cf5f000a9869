package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. N=32768 keeps a single derivation comfortably under
// 100ms on commodity hardware while staying memory-hard.
const (
	scryptN   = 32768
	scryptR   = 8
	scryptP   = 1
	saltBytes = 16
	keyBytes  = 64
)

// HashPassword derives a key from the plaintext with a fresh random salt and
// returns it as "hex(salt):hex(key)".
func HashPassword(plain string) (string, error) {
	salt := make([]byte, saltBytes)

	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(plain), salt, scryptN, scryptR, scryptP, keyBytes)

	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// CheckPassword re-derives the key with the stored salt and compares in
// constant time. Any malformed stored form fails closed: the caller only
// ever sees "does not match", never why.
func CheckPassword(plain, stored string) bool {
	saltHex, keyHex, ok := strings.Cut(stored, ":")

	if !ok {
		return false
	}

	salt, err := hex.DecodeString(saltHex)

	if err != nil || len(salt) == 0 {
		return false
	}

	key, err := hex.DecodeString(keyHex)

	if err != nil || len(key) == 0 {
		return false
	}

	derived, err := scrypt.Key([]byte(plain), salt, scryptN, scryptR, scryptP, len(key))

	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(derived, key) == 1
}

package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// keyByteLength is the number of random bytes behind the management API key.
// 32 bytes of entropy, hex-encoded to a 64-character string.
const keyByteLength = 32

// GenerateManagementKey produces the management API key and its bcrypt hash.
// The daemon stores only the hash; the plaintext key is shown to the operator
// exactly once and cannot be recovered afterwards.
func GenerateManagementKey() (key, hash string, err error) {
	buf := make([]byte, keyByteLength)
	n, err := rand.Read(buf)
	if err != nil {
		return "", "", fmt.Errorf("generating management key: crypto/rand failed: %w", err)
	}
	if n != keyByteLength {
		return "", "", fmt.Errorf("generating management key: expected %d random bytes, got %d", keyByteLength, n)
	}

	key = hex.EncodeToString(buf)
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hashing management key: %w", err)
	}
	return key, string(hashed), nil
}

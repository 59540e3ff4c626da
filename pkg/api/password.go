package api

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. hashIterations is lowered in tests.
const hashKeyLen = 256

var hashIterations = 100000

// MinPasscodeLen is the shortest passcode accepted.
const MinPasscodeLen = 8

// NewSalt returns 32 random bytes, hex encoded. It also serves as the
// generator for reset tokens and generated passcodes.
func NewSalt() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// HashPasscode derives the hex PBKDF2-SHA512 hash of passcode with salt.
func HashPasscode(passcode, salt string) string {
	key := pbkdf2.Key([]byte(passcode), []byte(salt), hashIterations, hashKeyLen, sha512.New)
	return hex.EncodeToString(key)
}

// CheckPasscode reports whether passcode hashes to hash under salt.
func CheckPasscode(passcode, salt, hash string) bool {
	got := HashPasscode(passcode, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(hash)) == 1
}

package internal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

// SessionIDBytes is the entropy of a session identifier (256 bits).
const SessionIDBytes = 32

// CSRFTokenBytes is the entropy of an anti-forgery token.
const CSRFTokenBytes = 32

// RandomHex returns n random bytes from crypto/rand, hex-encoded.
func RandomHex(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("invalid random length")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewSessionID returns a fresh 64-character hex session identifier.
func NewSessionID() (string, error) {
	return RandomHex(SessionIDBytes)
}

// IsSessionID reports whether s has the shape produced by NewSessionID.
func IsSessionID(s string) bool {
	if len(s) != SessionIDBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

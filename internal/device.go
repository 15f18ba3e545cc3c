package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

const unknownBindingValue = "unknown"

// DeviceFingerprint hashes the client user agent and IP into the hex digest
// stored on sessions. Missing values hash as "unknown" so the fingerprint is
// always defined.
func DeviceFingerprint(userAgent, ip string) string {
	if userAgent == "" {
		userAgent = unknownBindingValue
	}
	if ip == "" {
		ip = unknownBindingValue
	}
	sum := sha256.Sum256([]byte(userAgent + ":" + ip))
	return hex.EncodeToString(sum[:])
}

// FingerprintsConflict reports whether two fingerprints are both present and
// differ. An absent fingerprint on either side never conflicts.
func FingerprintsConflict(a, b string) bool {
	return a != "" && b != "" && a != b
}

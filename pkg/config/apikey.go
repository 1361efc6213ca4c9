package config

import (
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

// apiKeyIterations is the PBKDF2 work factor for API-key digests:
// expensive enough to make brute-forcing
// a guessed API key impractical, cheap enough that one verification per
// request is invisible next to network latency.
const apiKeyIterations = 100000

// apiKeySalt is fixed rather than per-install: the API key is a single
// shared secret handed out by the operator, not a user password, so there
// is no per-user salt to separate. It exists only so the derived digest
// isn't a bare SHA-256 of the key.
var apiKeySalt = []byte("assistsupport-api-key")

// DeriveAPIKeyDigest derives a fixed-size verification digest for key. The
// server stores only this digest's comparison target in memory long
// enough to check incoming requests; it never logs or persists the raw
// key.
func DeriveAPIKeyDigest(key string) []byte {
	return pbkdf2.Key([]byte(key), apiKeySalt, apiKeyIterations, sha256.Size, sha256.New)
}

// VerifyAPIKey reports whether candidate matches the key that produced
// digest, via PBKDF2 re-derivation and a constant-time comparison. Using
// a digest comparison instead of `candidate == key` avoids a timing side
// channel that would otherwise leak the key one byte at a time.
func VerifyAPIKey(candidate string, digest []byte) bool {
	if len(digest) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(DeriveAPIKeyDigest(candidate), digest) == 1
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyAPIKeyAcceptsMatchingKey(t *testing.T) {
	digest := DeriveAPIKeyDigest("correct-horse-battery-staple")
	assert.True(t, VerifyAPIKey("correct-horse-battery-staple", digest))
}

func TestVerifyAPIKeyRejectsWrongKey(t *testing.T) {
	digest := DeriveAPIKeyDigest("correct-horse-battery-staple")
	assert.False(t, VerifyAPIKey("wrong-key", digest))
	assert.False(t, VerifyAPIKey("", digest))
}

func TestVerifyAPIKeyRejectsEmptyDigest(t *testing.T) {
	assert.False(t, VerifyAPIKey("anything", nil))
}

func TestDeriveAPIKeyDigestIsDeterministic(t *testing.T) {
	a := DeriveAPIKeyDigest("same-key")
	b := DeriveAPIKeyDigest("same-key")
	assert.Equal(t, a, b)
}

func TestDeriveAPIKeyDigestDiffersPerKey(t *testing.T) {
	a := DeriveAPIKeyDigest("key-one")
	b := DeriveAPIKeyDigest("key-two")
	assert.NotEqual(t, a, b)
}

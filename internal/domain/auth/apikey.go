package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned when an API key is missing, unknown or malformed.
var ErrUnauthorized = errors.New("unauthorized")

// HashAPIKey returns the hex-encoded HMAC-SHA256 of key under pepper.
func HashAPIKey(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// KeyVerifier authenticates raw API keys against their stored hashes.
type KeyVerifier struct {
	keys   APIKeyRepository
	pepper []byte
}

// NewKeyVerifier creates a KeyVerifier with the given repository and pepper.
func NewKeyVerifier(keys APIKeyRepository, pepper []byte) *KeyVerifier {
	return &KeyVerifier{keys: keys, pepper: pepper}
}

// Verify looks up key by its HMAC and compares the stored hash in constant time.
func (v *KeyVerifier) Verify(ctx context.Context, key string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}

	hexHash := HashAPIKey(key, v.pepper)
	info, err := v.keys.FindByHash(ctx, hexHash)
	if err != nil {
		return nil, ErrUnauthorized
	}

	want, err := hex.DecodeString(hexHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(want, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return info, nil
}

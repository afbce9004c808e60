package token

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveCallerSecret derives a per-caller signing secret from a master
// secret via HKDF-SHA256, so the master secret is never used raw on the
// wire path. Derivation is deterministic: the same (master, callerID)
// pair always yields the same subkey.
func DeriveCallerSecret(masterSecret, callerID string) (string, error) {
	if masterSecret == "" {
		return "", &AuthError{Code: ErrAuthBadInput, Message: "master secret cannot be empty"}
	}
	if callerID == "" {
		return "", &AuthError{Code: ErrAuthBadInput, Message: "caller id cannot be empty"}
	}

	r := hkdf.New(sha256.New, []byte(masterSecret), []byte("trustplane-caller-kdf"), []byte(callerID))
	subkey := make([]byte, 32)
	if _, err := io.ReadFull(r, subkey); err != nil {
		return "", fmt.Errorf("hkdf expand failed: %w", err)
	}
	return hex.EncodeToString(subkey), nil
}

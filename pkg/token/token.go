// Package token implements the caller token authority: short-lived
// HMAC-SHA256 signed proofs of caller identity.
//
// Tokens are owned by the calling service; the gateway only verifies.
// Validation is pure and fail-fast — there is no retry path for a bad,
// expired, or future-dated signature.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Deterministic error codes for authentication failures.
const (
	ErrAuthBadInput         = "ERR_AUTH_BAD_INPUT"
	ErrAuthInvalidSignature = "ERR_AUTH_INVALID_SIGNATURE"
	ErrAuthExpired          = "ERR_AUTH_EXPIRED"
	ErrAuthFutureIssued     = "ERR_AUTH_FUTURE_ISSUED"
)

// DefaultTTL is the default validity window for a caller token.
const DefaultTTL = 300 * time.Second

// futureSkew is the maximum tolerated clock drift for issued_at.
const futureSkew = 30 * time.Second

// CallerToken is a short-lived signed proof of caller identity.
// IssuedAt is the exact ISO-8601 string that was signed; re-formatting
// it would invalidate the signature.
type CallerToken struct {
	CallerID  string `json:"caller_id"`
	Signature string `json:"signature"`
	IssuedAt  string `json:"issued_at"`
}

// AuthError is a typed authentication failure.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Authority creates and validates caller tokens.
type Authority struct {
	clock func() time.Time
}

// NewAuthority creates a token authority using the wall clock.
func NewAuthority() *Authority {
	return &Authority{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (a *Authority) WithClock(clock func() time.Time) *Authority {
	a.clock = clock
	return a
}

// Create issues a new signed token for callerID.
func (a *Authority) Create(callerID, secret string) (*CallerToken, error) {
	if callerID == "" {
		return nil, &AuthError{Code: ErrAuthBadInput, Message: "caller id cannot be empty"}
	}
	if secret == "" {
		return nil, &AuthError{Code: ErrAuthBadInput, Message: "secret cannot be empty"}
	}

	issuedAt := a.clock().UTC().Format(time.RFC3339)
	return &CallerToken{
		CallerID:  callerID,
		Signature: sign(secret, callerID, issuedAt),
		IssuedAt:  issuedAt,
	}, nil
}

// Validate verifies the token signature and freshness against secret.
// ttl <= 0 selects DefaultTTL. Signature comparison is constant time.
func (a *Authority) Validate(tok *CallerToken, secret string, ttl time.Duration) error {
	if tok == nil || tok.CallerID == "" || tok.Signature == "" || tok.IssuedAt == "" {
		return &AuthError{Code: ErrAuthBadInput, Message: "token is missing required fields"}
	}
	if secret == "" {
		return &AuthError{Code: ErrAuthBadInput, Message: "secret cannot be empty"}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	expected := sign(secret, tok.CallerID, tok.IssuedAt)
	// hmac.Equal rejects length mismatches without leaking timing.
	if !hmac.Equal([]byte(expected), []byte(tok.Signature)) {
		return &AuthError{Code: ErrAuthInvalidSignature, Message: "signature mismatch"}
	}

	issuedAt, err := time.Parse(time.RFC3339, tok.IssuedAt)
	if err != nil {
		return &AuthError{Code: ErrAuthBadInput, Message: fmt.Sprintf("unparseable issued_at: %v", err)}
	}

	now := a.clock()
	if now.Sub(issuedAt) > ttl {
		return &AuthError{Code: ErrAuthExpired, Message: fmt.Sprintf("token older than ttl %s", ttl)}
	}
	if issuedAt.Sub(now) > futureSkew {
		return &AuthError{Code: ErrAuthFutureIssued, Message: "issued_at is too far in the future"}
	}
	return nil
}

func sign(secret, callerID, issuedAt string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(callerID + "|" + issuedAt))
	return hex.EncodeToString(mac.Sum(nil))
}

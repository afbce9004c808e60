package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceClaims extends standard JWT claims with trustplane identity fields.
// Service tokens cover internal Core↔Repo hops; external callers use
// CallerToken instead.
type ServiceClaims struct {
	jwt.RegisteredClaims
	Domain string `json:"domain,omitempty"`
	Phase  string `json:"phase,omitempty"`
	Layer  string `json:"layer,omitempty"`
}

// ServiceTokenManager issues and validates internal service JWTs.
type ServiceTokenManager struct {
	secret []byte
	clock  func() time.Time
}

func NewServiceTokenManager(secret string) *ServiceTokenManager {
	return &ServiceTokenManager{secret: []byte(secret), clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (m *ServiceTokenManager) WithClock(clock func() time.Time) *ServiceTokenManager {
	m.clock = clock
	return m
}

// Issue creates a signed service token for subject.
func (m *ServiceTokenManager) Issue(subject, domain, phase, layer string, duration time.Duration) (string, error) {
	if subject == "" {
		return "", &AuthError{Code: ErrAuthBadInput, Message: "subject cannot be empty"}
	}

	now := m.clock().UTC()
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			Issuer:    "trustplane/core",
			Audience:  jwt.ClaimStrings{"trustplane.internal"},
		},
		Domain: domain,
		Phase:  phase,
		Layer:  layer,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses and validates a service JWT string.
func (m *ServiceTokenManager) Verify(tokenString string) (*ServiceClaims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.clock))

	if err != nil {
		return nil, &AuthError{Code: ErrAuthInvalidSignature, Message: err.Error()}
	}
	claims, ok := tok.Claims.(*ServiceClaims)
	if !ok || !tok.Valid {
		return nil, &AuthError{Code: ErrAuthInvalidSignature, Message: "invalid service token"}
	}
	return claims, nil
}

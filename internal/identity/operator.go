package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// OperatorClaims are the JWT claims for an operator session token. The
// subject is the actor recorded as performed_by on audit records.
type OperatorClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	Type string `json:"type"` // always "operator"
}

// OperatorTokenIssuer issues and verifies HS256 operator session tokens.
type OperatorTokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewOperatorTokenIssuer creates an OperatorTokenIssuer.
//
//	secret: HMAC signing key, must not be empty.
//	ttl:    token lifetime (default 8 hours).
func NewOperatorTokenIssuer(secret, issuer string, ttl time.Duration) (*OperatorTokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("operator token secret is empty")
	}
	if ttl == 0 {
		ttl = 8 * time.Hour
	}
	return &OperatorTokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue creates a signed operator session token for subject.
func (o *OperatorTokenIssuer) Issue(subject, name string) (string, error) {
	now := time.Now().UTC()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    o.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(o.ttl)),
			ID:        uuid.New().String(),
		},
		Name: name,
		Type: "operator",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(o.secret)
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an operator session token, returning its claims.
func (o *OperatorTokenIssuer) Verify(tokenStr string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&OperatorClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return o.secret, nil
		},
		jwt.WithIssuer(o.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify operator token: %w", err)
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid operator token claims")
	}
	if claims.Type != "operator" || claims.Subject == "" {
		return nil, fmt.Errorf("not an operator session token")
	}
	return claims, nil
}

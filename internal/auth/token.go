package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/incident-service/internal/domain"
)

// TokenManager handles issuing and validating operator JWTs.
type TokenManager struct {
	secret []byte
	ttl    time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute, Now: time.Now}
}

// Claims describes JWT payload. The operator id travels in the registered
// "sub" claim.
type Claims struct {
	Name string              `json:"name,omitempty"`
	Role domain.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

// Operator returns the identity carried by the token.
func (c *Claims) Operator() domain.Operator {
	return domain.Operator{ID: c.Subject, Name: c.Name, Role: c.Role}
}

// GenerateToken builds and signs a JWT for the operator.
func (tm *TokenManager) GenerateToken(operator domain.Operator) (string, time.Time, error) {
	issuedAt := tm.Now()
	expiresAt := issuedAt.Add(tm.ttl)
	claims := &Claims{
		Name: operator.Name,
		Role: operator.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.Now))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"lexdocs/pkg/domain"
)

const (
	defaultIssuer = "lexdocs-api"
	defaultTTL    = 24 * time.Hour
	defaultLeeway = 30 * time.Second
)

var (
	// ErrInvalidToken is returned for malformed, mis-signed, or expired tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims carried by a session token.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// TokenIssuer issues and verifies HS256 session tokens carrying the user's
// id, email, and name.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
}

// NewTokenIssuer builds an issuer from the configured signing secret.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt signing secret is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    ttl,
		leeway: defaultLeeway,
	}, nil
}

// Issue signs a session token for the user.
func (t *TokenIssuer) Issue(user domain.User) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Email: user.Email,
		Name:  user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims.
func (t *TokenIssuer) Verify(tokenString string) (Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithLeeway(t.leeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

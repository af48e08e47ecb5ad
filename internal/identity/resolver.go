package identity

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"messaging-service/internal/authz"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the caller resolved from a bearer token: who they are and
// which role the platform granted them.
type Identity struct {
	UserID int
	Role   authz.Role
}

// Resolver verifies HMAC-signed tokens issued by the platform's identity
// service. The messaging service never issues production tokens itself.
type Resolver struct {
	secret []byte
}

// NewResolver builds a Resolver for the shared signing secret.
func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Resolve validates the token signature and expiry and extracts the caller's
// user id and normalized role.
func (r *Resolver) Resolve(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID == 0 {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: userID, Role: authz.Normalize(claims.Role)}, nil
}

// Issue signs a token for the given user. Used by tests and local tooling.
func (r *Resolver) Issue(userID int, role authz.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(r.secret)
}

package mockserver

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// userClaims mirrors the claims Mender's useradm puts into management tokens.
type userClaims struct {
	jwt.RegisteredClaims
	User bool `json:"mender.user"`
}

// tokenIssuer issues and verifies HS256 user tokens.
type tokenIssuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

func newTokenIssuer(key []byte, issuer string, ttl time.Duration) *tokenIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &tokenIssuer{key: key, issuer: issuer, ttl: ttl}
}

// issue creates a signed token for userID.
func (t *tokenIssuer) issue(userID string) (string, error) {
	now := time.Now().UTC()
	claims := userClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		User: true,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// verify parses and validates a token, returning its claims on success.
func (t *tokenIssuer) verify(tokenStr string) (*userClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&userClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.key, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(*userClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

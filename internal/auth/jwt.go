package auth

import (
	"crypto/rsa"
	"errors"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier checks tokens issued by the platform's auth service. RS256
// against the published public key in production; HS256 with a shared
// secret for local setups.
type Verifier struct {
	pub    *rsa.PublicKey
	secret []byte
	method string
}

func NewRS256Verifier(publicKeyPath string) (*Verifier, error) {
	b, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, err
	}
	return &Verifier{pub: pub, method: "RS256"}, nil
}

func NewHS256Verifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), method: "HS256"}
}

// Verify returns the user id carried in the token's sub (or user_id) claim.
func (v *Verifier) Verify(tokenStr string) (string, error) {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if v.pub != nil {
			return v.pub, nil
		}
		return v.secret, nil
	}
	tok, err := jwt.Parse(tokenStr, keyFunc, jwt.WithValidMethods([]string{v.method}))
	if err != nil {
		return "", err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return "", ErrInvalidToken
	}
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub, nil
	}
	if userID, ok := claims["user_id"].(string); ok && userID != "" {
		return userID, nil
	}
	return "", ErrInvalidToken
}

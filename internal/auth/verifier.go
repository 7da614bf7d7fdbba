package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("no token provided")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Identity is the resolved result of a verified credential.
type Identity struct {
	UserID   string
	Username string
}

// Verifier validates bearer tokens for both REST calls and websocket
// handshakes. The two paths share this single implementation so a user
// who can call the API can always establish a session.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the token and resolves the user identity
// from its claims.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Only HMAC is accepted; anything else is a forgery attempt.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return Identity{}, ErrInvalidToken
	}

	ident := Identity{UserID: userID}
	if name, ok := claims["username"].(string); ok {
		ident.Username = name
	}
	return ident, nil
}

// Issue signs a token for the given identity. The login flow lives in a
// separate service; this is used by tests and local tooling.
func (v *Verifier) Issue(ident Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": ident.UserID,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if ident.Username != "" {
		claims["username"] = ident.Username
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

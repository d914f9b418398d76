// Package authbridge resolves the authenticated player_id from an
// already-issued bearer token. Token issuance, OAuth, and credential
// storage are out of the core's scope (the core assumes an authenticated
// principal reaches it); this is the one claim read the core still needs
// before the WS upgrade. Grounded on the teacher's utils.ValidateJWT /
// middleware.RequireAuth, trimmed to validation only.
package authbridge

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("authbridge: invalid token")

// Claims is the subset of token fields the core reads.
type Claims struct {
	PlayerID string `json:"player_id"`
	jwt.RegisteredClaims
}

// Validator resolves a bearer token to a player_id.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// ResolvePlayerID validates tokenString and returns the player_id claim.
func (v *Validator) ResolvePlayerID(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.PlayerID == "" {
		return "", ErrInvalidToken
	}
	return claims.PlayerID, nil
}

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

type TokenType string

const (
	TokenTypeUndefined TokenType = ""
	TokenTypeTeam      TokenType = "team"
	TokenTypeAdmin     TokenType = "admin"
)

type TokenClaims struct {
	Type   TokenType `json:"type"`
	TeamID int64     `json:"team_id,omitempty"`
	jwt.RegisteredClaims
}

// CanAccessTeam reports whether the bearer may act on the given team.
func (c *TokenClaims) CanAccessTeam(teamID int64) bool {
	switch c.Type {
	case TokenTypeAdmin:
		return true
	case TokenTypeTeam:
		return c.TeamID == teamID
	}
	return false
}

// Signer issues and verifies HS256 tokens with one shared secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) GenerateToken(tokenType TokenType, teamID int64, dur time.Duration) (string, error) {
	if tokenType == TokenTypeTeam && teamID <= 0 {
		return "", ErrMissingTeam
	}

	claims := TokenClaims{
		Type:   tokenType,
		TeamID: teamID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(dur)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Signer) VerifyToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Wrap(ErrInvalidSigningMethod, token.Method.Alg())
		}
		return s.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

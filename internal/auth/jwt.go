package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour

	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var ErrWrongTokenType = errors.New("wrong token type")

// Claims identify a POS terminal session. Tokens are issued to a terminal,
// not to a person; Role comes from the PIN that unlocked it.
type Claims struct {
	TerminalID uuid.UUID `json:"terminal_id"`
	Role       string    `json:"role"`
	TokenType  string    `json:"typ"`
	jwt.RegisteredClaims
}

func GenerateToken(secret string, terminalID uuid.UUID, role string) (string, error) {
	return sign(secret, terminalID, role, tokenAccess, AccessTokenTTL)
}

func GenerateRefreshToken(secret string, terminalID uuid.UUID, role string) (string, error) {
	return sign(secret, terminalID, role, tokenRefresh, RefreshTokenTTL)
}

func sign(secret string, terminalID uuid.UUID, role, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TerminalID: terminalID,
		Role:       role,
		TokenType:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   terminalID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses an access token.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	return validate(secret, tokenStr, tokenAccess)
}

func ValidateRefreshToken(secret, tokenStr string) (*Claims, error) {
	return validate(secret, tokenStr, tokenRefresh)
}

func validate(secret, tokenStr, typ string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.TokenType != typ {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTTL  = 72 * time.Hour
	refreshTTL = 30 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is what a validated token says about its bearer.
type Claims struct {
	UserID string
	Name   string
}

type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), now: time.Now}
}

func (t *TokenIssuer) GenerateJWT(userID, name string) (string, error) {
	return t.sign(userID, name, tokenTypeAccess, accessTTL)
}

func (t *TokenIssuer) GenerateRefreshToken(userID, name string) (string, error) {
	return t.sign(userID, name, tokenTypeRefresh, refreshTTL)
}

func (t *TokenIssuer) sign(userID, name, typ string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"name":    name,
		"type":    typ,
		"exp":     t.now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateToken accepts access tokens only.
func (t *TokenIssuer) ValidateToken(tokenString string) (*Claims, error) {
	return t.validate(tokenString, tokenTypeAccess)
}

func (t *TokenIssuer) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return t.validate(tokenString, tokenTypeRefresh)
}

func (t *TokenIssuer) validate(tokenString, typ string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims["type"] != typ {
		return nil, fmt.Errorf("%w: wrong token type", ErrInvalidToken)
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	name, _ := claims["name"].(string)
	return &Claims{UserID: userID, Name: name}, nil
}

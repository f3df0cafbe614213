package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the decoded identity carried by a verified token.
type Claims struct {
	UserID  uint
	Email   string
	TokenID string
}

// TokenIssuer signs and verifies user scoped JWT tokens. Every token carries
// a jti so the session store can revoke it before expiry.
type TokenIssuer struct {
	secretKey []byte
	ttl       time.Duration
}

// NewTokenIssuer builds a token helper using the provided secret.
func NewTokenIssuer(secretKey string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{
		secretKey: []byte(secretKey),
		ttl:       ttl,
	}
}

// TTL reports the configured token lifetime.
func (ti *TokenIssuer) TTL() time.Duration {
	return ti.ttl
}

// Issue creates a signed JWT for the user and returns it with its jti.
func (ti *TokenIssuer) Issue(userID uint, email string) (string, string, error) {
	if ti == nil || len(ti.secretKey) == 0 {
		return "", "", errors.New("token secret is empty")
	}

	now := time.Now()
	tokenID := uuid.NewString()
	claims := jwt.MapClaims{
		"sub":   strconv.FormatUint(uint64(userID), 10),
		"email": email,
		"jti":   tokenID,
		"exp":   now.Add(ti.ttl).Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secretKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, tokenID, nil
}

// Verify validates the JWT signature and expiry and extracts the claims.
func (ti *TokenIssuer) Verify(tokenString string) (Claims, error) {
	if ti == nil || len(ti.secretKey) == 0 {
		return Claims{}, errors.New("token secret is empty")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secretKey, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return Claims{}, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims")
	}
	sub, ok := mapClaims["sub"].(string)
	if !ok {
		return Claims{}, errors.New("invalid sub claim")
	}
	userID, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return Claims{}, fmt.Errorf("invalid sub claim: %w", err)
	}

	claims := Claims{UserID: uint(userID)}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	if tokenID, ok := mapClaims["jti"].(string); ok {
		claims.TokenID = tokenID
	}
	return claims, nil
}

// Package auth decodes bearer tokens presented on join and checks them
// against the user's live session.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Tyrowin/streamchat/internal/chat"
)

// Token errors alias the chat core's sentinels.
var (
	// ErrInvalidToken is returned when the token cannot be parsed or verified.
	ErrInvalidToken = chat.ErrInvalidToken
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = chat.ErrExpiredToken
	// ErrUnacceptableTokenID is returned when the token names no valid user.
	ErrUnacceptableTokenID = chat.ErrUnacceptableTokenID
	// ErrUnacceptableTokenNum is returned when the token belongs to a
	// session that has since been replaced.
	ErrUnacceptableTokenNum = chat.ErrUnacceptableTokenNum
	// ErrNoSession is returned when the user has no active session.
	ErrNoSession = chat.ErrNoSession
)

// Config holds token settings.
type Config struct {
	SecretKey           string
	Issuer              string
	AccessTokenDuration time.Duration
}

// DefaultConfig returns settings suitable for local development only.
func DefaultConfig() Config {
	return Config{
		SecretKey:           "dev-secret-change-in-production",
		Issuer:              "streamchat",
		AccessTokenDuration: 15 * time.Minute,
	}
}

// Claims are the custom claims carried by an access token. Num identifies
// the login session the token was issued for.
type Claims struct {
	UserID int32 `json:"user_id"`
	Num    int32 `json:"num"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 access tokens.
type TokenManager struct {
	config Config
}

// NewTokenManager creates a TokenManager with the given configuration.
func NewTokenManager(config Config) *TokenManager {
	return &TokenManager{config: config}
}

// GenerateAccessToken issues a token for userID's session num.
func (m *TokenManager) GenerateAccessToken(userID, num int32) (string, error) {
	return m.generate(userID, num, m.config.AccessTokenDuration)
}

func (m *TokenManager) generate(userID, num int32, duration time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Num:    num,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// ValidateToken verifies the signature and expiry and returns the claims.
func (m *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(m.config.SecretKey), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

package auth

import (
	"context"
	"fmt"
)

// SessionStore reports the current session number of a user.
type SessionStore interface {
	FindSessionNum(ctx context.Context, userID int32) (num int32, found bool, err error)
}

// Resolver turns an access token into a user id, rejecting tokens whose
// session is no longer the user's current one.
type Resolver struct {
	tokens   *TokenManager
	sessions SessionStore
}

// NewResolver creates a Resolver.
func NewResolver(tokens *TokenManager, sessions SessionStore) *Resolver {
	return &Resolver{tokens: tokens, sessions: sessions}
}

// DecodeAndValidate returns the user id carried by accessToken.
func (r *Resolver) DecodeAndValidate(ctx context.Context, accessToken string) (int32, error) {
	claims, err := r.tokens.ValidateToken(accessToken)
	if err != nil {
		return 0, err
	}
	if claims.UserID <= 0 {
		return 0, ErrUnacceptableTokenID
	}

	num, found, err := r.sessions.FindSessionNum(ctx, claims.UserID)
	if err != nil {
		return 0, fmt.Errorf("find session of user %d: %w", claims.UserID, err)
	}
	if !found {
		return 0, ErrNoSession
	}
	if num != claims.Num {
		return 0, ErrUnacceptableTokenNum
	}
	return claims.UserID, nil
}

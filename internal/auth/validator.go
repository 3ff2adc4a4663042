// ABOUTME: Token validation against the workspace token store
// ABOUTME: Tokens are opaque lookup keys, presence in the store is validity

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcpr/mcpr-gateway/internal/store"
)

// TokenLookup is the slice of the token store the validator needs.
type TokenLookup interface {
	Get(ctx context.Context, id string) (*store.Token, error)
}

// Result describes the outcome of validating a single token.
//
// An unknown token is a Result with Valid false, not a Go error; the error
// return of Validate is reserved for storage failures where validity could
// not be determined at all.
type Result struct {
	Valid    bool
	ClientID string
	Reason   string
}

// TokenValidator checks presented bearer tokens against the active
// workspace's token table. It holds no cache; every check hits the store so
// a revoked token is rejected immediately.
type TokenValidator struct {
	tokens TokenLookup
	logger *slog.Logger
}

// NewTokenValidator creates a validator over the given token lookup.
func NewTokenValidator(tokens TokenLookup) *TokenValidator {
	return &TokenValidator{
		tokens: tokens,
		logger: slog.Default().With("component", "auth"),
	}
}

// Validate checks a presented token. An empty token and a token absent from
// the store both yield an invalid Result with a human-readable reason.
func (v *TokenValidator) Validate(ctx context.Context, token string) (Result, error) {
	if token == "" {
		return Result{Valid: false, Reason: "missing token"}, nil
	}

	t, err := v.tokens.Get(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		v.logger.Debug("rejected unknown token")
		return Result{Valid: false, Reason: "unknown token"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("looking up token: %w", err)
	}

	return Result{Valid: true, ClientID: t.ClientID}, nil
}

package auth

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/burger-ledger/internal/domain/account"
)

// ErrUnknownKey is returned when no active API key matches a hash.
var ErrUnknownKey = errors.New("api key not found")

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Account account.ID
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type identityKey struct{}

// WithAccount returns a context carrying the authenticated caller.
func WithAccount(ctx context.Context, id account.ID) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// AccountFrom returns the authenticated caller stored in ctx.
func AccountFrom(ctx context.Context) (account.ID, bool) {
	id, ok := ctx.Value(identityKey{}).(account.ID)
	return id, ok && id != ""
}

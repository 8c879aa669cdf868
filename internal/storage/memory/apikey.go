package memory

import (
	"context"
	"sync"

	"github.com/xenking/burger-ledger/internal/domain/auth"
)

var _ auth.Repository = (*APIKeys)(nil)

// APIKeys is an in-memory API key table indexed by key hash.
type APIKeys struct {
	mu     sync.RWMutex
	byHash map[string]auth.APIKeyInfo
}

// NewAPIKeys returns an empty key table.
func NewAPIKeys() *APIKeys {
	return &APIKeys{byHash: make(map[string]auth.APIKeyInfo)}
}

// Add stores info under its KeyHash.
func (k *APIKeys) Add(info auth.APIKeyInfo) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.byHash[info.KeyHash] = info
}

// FindByHash implements auth.Repository.
func (k *APIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	info, ok := k.byHash[hash]
	if !ok {
		return nil, auth.ErrUnknownKey
	}
	return &info, nil
}

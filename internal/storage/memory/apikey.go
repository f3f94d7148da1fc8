package memory

import (
	"context"
	"sync"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository is an in-memory API key store indexed by hash.
type APIKeyRepository struct {
	mu     sync.RWMutex
	byHash map[string]auth.APIKeyInfo
}

// NewAPIKeyRepository returns an empty APIKeyRepository.
func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{byHash: make(map[string]auth.APIKeyInfo)}
}

// UpsertAPIKey stores info under its hash, replacing a key with the same id.
func (r *APIKeyRepository) UpsertAPIKey(_ context.Context, info auth.APIKeyInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for hash, existing := range r.byHash {
		if existing.ID == info.ID {
			delete(r.byHash, hash)
		}
	}
	info.Scopes = append([]string(nil), info.Scopes...)
	r.byHash[info.KeyHash] = info
	return nil
}

func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &info, nil
}

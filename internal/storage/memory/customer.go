package memory

import (
	"context"
	"sync"

	"github.com/nicolascaliari/barfer-api-desarrollo/internal/domain/customer"
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository is an in-memory user, address and delivery area store.
type CustomerRepository struct {
	mu        sync.RWMutex
	users     map[string]customer.User
	addresses map[string]customer.Address
	areas     map[string]customer.DeliveryArea
}

// NewCustomerRepository returns an empty CustomerRepository.
func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{
		users:     make(map[string]customer.User),
		addresses: make(map[string]customer.Address),
		areas:     make(map[string]customer.DeliveryArea),
	}
}

func (r *CustomerRepository) PutUser(u customer.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *CustomerRepository) PutAddress(a customer.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addresses[a.ID] = a
}

func (r *CustomerRepository) PutDeliveryArea(a customer.DeliveryArea) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.areas[a.ID] = a
}

func (r *CustomerRepository) GetUser(_ context.Context, id string) (*customer.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, customer.ErrUserNotFound
	}
	return &u, nil
}

func (r *CustomerRepository) GetAddress(_ context.Context, id string) (*customer.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.addresses[id]
	if !ok {
		return nil, customer.ErrAddressNotFound
	}
	return &a, nil
}

func (r *CustomerRepository) GetDeliveryArea(_ context.Context, id string) (*customer.DeliveryArea, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.areas[id]
	if !ok {
		return nil, customer.ErrDeliveryAreaNotFound
	}
	return &a, nil
}

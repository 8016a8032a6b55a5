package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/pkg/models"
)

type AddressRepository struct {
	mu        sync.RWMutex
	addresses map[string]models.Address
}

func NewAddressRepository() *AddressRepository {
	return &AddressRepository{addresses: make(map[string]models.Address)}
}

func (r *AddressRepository) Add(ctx context.Context, address *models.Address) (*models.Address, error) {
	if address == nil {
		return nil, apperrors.Validation("address cannot be nil")
	}
	if address.ID == "" {
		return nil, apperrors.Validation("address identifier cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.addresses[address.ID]; exists {
		return nil, apperrors.Conflict("address %s already exists", address.ID)
	}
	r.addresses[address.ID] = *address
	out := *address
	return &out, nil
}

func (r *AddressRepository) GetByID(ctx context.Context, id string) (*models.Address, error) {
	if id == "" {
		return nil, apperrors.Validation("address identifier cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	address, ok := r.addresses[id]
	if !ok {
		return nil, nil
	}
	return &address, nil
}

// GetByCustomerID returns the customer's earliest address when several exist.
func (r *AddressRepository) GetByCustomerID(ctx context.Context, customerID string) (*models.Address, error) {
	if customerID == "" {
		return nil, apperrors.Validation("customer identifier cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *models.Address
	for _, address := range r.addresses {
		if address.CustomerID != customerID {
			continue
		}
		if found == nil || address.CreatedAt.Before(found.CreatedAt) ||
			(address.CreatedAt.Equal(found.CreatedAt) && address.ID < found.ID) {
			a := address
			found = &a
		}
	}
	return found, nil
}

func (r *AddressRepository) List(ctx context.Context) ([]*models.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Address, 0, len(r.addresses))
	for _, address := range r.addresses {
		a := address
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *AddressRepository) Update(ctx context.Context, address *models.Address) (bool, error) {
	if address == nil {
		return false, apperrors.Validation("address cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.addresses[address.ID]; !ok {
		return false, nil
	}
	r.addresses[address.ID] = *address
	return true, nil
}

func (r *AddressRepository) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, apperrors.Validation("address identifier cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.addresses[id]; !ok {
		return false, nil
	}
	delete(r.addresses, id)
	return true, nil
}

// Package memory keeps orders, addresses and the transition journal in
// process. It backs local runs with STORAGE_DRIVER=memory and the service
// tests; every read and write goes through a copy.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/pkg/models"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*models.Order)}
}

func (r *OrderRepository) Add(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order == nil {
		return nil, apperrors.Validation("order cannot be nil")
	}
	if order.ID == "" {
		return nil, apperrors.Validation("order identifier cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return nil, apperrors.Conflict("order %s already exists", order.ID)
	}
	order.Version = 1
	r.orders[order.ID] = order.Clone()
	return order.Clone(), nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	if id == "" {
		return nil, apperrors.Validation("order identifier cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return order.Clone(), nil
}

// List returns orders newest first, ties broken by id.
func (r *OrderRepository) List(ctx context.Context) ([]*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Order, 0, len(r.orders))
	for _, order := range r.orders {
		out = append(out, order.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Update replaces the stored order when its version still matches the one
// the caller loaded, then bumps the version on both copies.
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) (bool, error) {
	if order == nil {
		return false, apperrors.Validation("order cannot be nil")
	}
	if order.ID == "" {
		return false, apperrors.Validation("order identifier cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return false, nil
	}
	if stored.Version != order.Version {
		return false, apperrors.Conflict("order %s was modified concurrently (version %d, stored %d)",
			order.ID, order.Version, stored.Version)
	}

	order.Version++
	r.orders[order.ID] = order.Clone()
	return true, nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, apperrors.Validation("order identifier cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return false, nil
	}
	delete(r.orders, id)
	return true, nil
}

func (r *OrderRepository) Ping(ctx context.Context) error {
	return nil
}

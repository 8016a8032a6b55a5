package orders

import (
	"context"
	"fmt"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/internal/websocket"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/sirupsen/logrus"
)

// UpdateOrderItems replaces the items of a Pending order and recomputes its
// total. New items are priced and reserved first, the order is stored, and
// only then is the stock held by the old items released. It returns nil, nil
// when the order does not exist.
func (s *Service) UpdateOrderItems(ctx context.Context, id string, req models.UpdateOrderItemsRequest) (*models.OrderRead, error) {
	if id == "" {
		return nil, apperrors.Validation("order identifier cannot be empty")
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil || order == nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, apperrors.InvalidState("items of order %s cannot change while it is %s", id, order.Status)
	}

	replaced := order.Clone()
	replaced.Items = make([]models.OrderItem, 0, len(req.Items))
	for _, requested := range req.Items {
		item := models.OrderItem{
			ID:               s.newID(),
			ProductID:        requested.ProductID,
			ProductVariantID: requested.ProductVariantID,
			Quantity:         requested.Quantity,
		}
		if err := s.priceAndReserve(ctx, &item); err != nil {
			s.warnUnreleased(replaced, err)
			return nil, err
		}
		replaced.Items = append(replaced.Items, item)
	}
	replaced.TotalAmount = replaced.ComputeTotal()
	now := s.now().UTC()
	replaced.UpdatedAt = &now

	updated, err := s.repo.Update(ctx, replaced)
	if err != nil {
		s.warnUnreleased(replaced, err)
		return nil, fmt.Errorf("update items of order %s: %w", id, err)
	}
	if !updated {
		s.warnUnreleased(replaced, apperrors.NotFound("Order %s not found", id))
		return nil, nil
	}

	log := s.logger.WithFields(logrus.Fields{
		"order_id":     id,
		"total_amount": replaced.TotalAmount.StringFixed(2),
		"items_count":  len(replaced.Items),
	})
	if err := s.forEachItem(ctx, order, s.products.ReleaseProductStock, s.products.ReleaseVariantStock); err != nil {
		log.WithError(err).Warn("Failed to release stock held by replaced order items")
	}
	log.Info("Order items updated")

	read := replaced.ToRead()
	s.broadcast(websocket.MessageOrderItemsUpdated, read)
	return &read, nil
}

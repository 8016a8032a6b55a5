package orders

import (
	"context"
	"fmt"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/internal/events"
	"github.com/jogardn/order-orchestrator/internal/websocket"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/sirupsen/logrus"
)

// PatchOrderStatus moves an order to target. Side effects run in a fixed
// order before the status is written: validate, call remote services,
// mutate, persist. It returns false, nil when the order does not exist.
// Remote calls that succeeded before a later failure are not undone; the
// journal entry for the attempt is left FAILED.
func (s *Service) PatchOrderStatus(ctx context.Context, id string, target models.OrderStatus) (bool, error) {
	if id == "" {
		return false, apperrors.Validation("order identifier cannot be empty")
	}
	if !target.Valid() {
		return false, apperrors.Validation("unknown order status %q", target)
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, nil
	}

	from := order.Status
	if !CanTransition(from, target) {
		return false, apperrors.InvalidTransition("cannot change order %s from %s to %s (allowed: %s)",
			id, from, target, describeNext(from))
	}

	log := s.logger.WithFields(logrus.Fields{
		"order_id":    id,
		"from_status": from,
		"to_status":   target,
	})

	record := models.TransitionRecord{
		ID:         s.newID(),
		OrderID:    id,
		FromStatus: from,
		ToStatus:   target,
		StartedAt:  s.now().UTC(),
	}
	if err := s.journal.Begin(ctx, record); err != nil {
		return false, fmt.Errorf("journal transition for order %s: %w", id, err)
	}

	updated, err := s.applyTransition(ctx, order, target)
	if err != nil {
		log.WithError(err).WithField("shipment_id", order.ShipmentID).Warn("Order transition failed")
		s.finishTransition(ctx, record.ID, models.TransitionFailed, err.Error())
		return false, err
	}
	if !updated {
		s.finishTransition(ctx, record.ID, models.TransitionFailed, "order no longer exists")
		return false, nil
	}
	s.finishTransition(ctx, record.ID, models.TransitionApplied, "")

	log.WithField("shipment_id", order.ShipmentID).Info("Order status updated")

	changed := events.OrderStatusChangedEvent{
		OrderID:    id,
		FromStatus: from,
		ToStatus:   target,
		ShipmentID: order.ShipmentID,
		ChangedAt:  *order.UpdatedAt,
	}
	if err := s.publisher.PublishOrderStatusChanged(changed); err != nil {
		log.WithError(err).Error("Failed to publish order status changed event")
	}
	s.broadcast(websocket.MessageOrderStatusChanged, changed)

	return true, nil
}

func (s *Service) applyTransition(ctx context.Context, order *models.Order, target models.OrderStatus) (bool, error) {
	var err error
	switch target {
	case models.OrderStatusCancelled:
		err = s.cancel(ctx, order)
	case models.OrderStatusCompleted:
		err = s.forEachItem(ctx, order, s.products.ReduceProductStock, s.products.ReduceVariantStock)
	case models.OrderStatusInTransit:
		err = s.confirmDispatched(ctx, order)
	case models.OrderStatusProcessing:
		err = s.ensureShipment(ctx, order)
	}
	if err != nil {
		return false, err
	}

	now := s.now().UTC()
	order.Status = target
	order.UpdatedAt = &now
	return s.repo.Update(ctx, order)
}

// finishTransition closes the journal entry even when the request context
// has already been cancelled.
func (s *Service) finishTransition(ctx context.Context, id string, state models.TransitionState, cause string) {
	if err := s.journal.Finish(context.WithoutCancel(ctx), id, state, cause); err != nil {
		s.logger.WithError(err).WithField("transition_id", id).Error("Failed to finish journal entry")
	}
}

type stockFunc func(ctx context.Context, id string, quantity int) error

// forEachItem applies the product or variant stock operation to every item
// in order, stopping at the first failure.
func (s *Service) forEachItem(ctx context.Context, order *models.Order, product, variant stockFunc) error {
	for _, item := range order.Items {
		var err error
		if item.HasVariant() {
			err = variant(ctx, item.ProductVariantID, item.Quantity)
		} else {
			err = product(ctx, item.ProductID, item.Quantity)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) cancel(ctx context.Context, order *models.Order) error {
	if err := s.forEachItem(ctx, order, s.products.ReleaseProductStock, s.products.ReleaseVariantStock); err != nil {
		return err
	}
	if order.ShipmentID == "" {
		return nil
	}
	return s.logistics.UpdateShipment(ctx, order.ShipmentID, models.ShipmentStatusCancelled)
}

func (s *Service) confirmDispatched(ctx context.Context, order *models.Order) error {
	if order.ShipmentID == "" {
		return apperrors.InvalidState("order %s has no shipment", order.ID)
	}
	shipment, err := s.logistics.GetShipment(ctx, order.ShipmentID)
	if err != nil {
		return err
	}
	if shipment.Status != models.ShipmentStatusInTransit {
		return apperrors.InvalidState("shipment %s for order %s not yet dispatched (status %s)",
			order.ShipmentID, order.ID, shipment.Status)
	}
	return nil
}

// ensureShipment books a shipment to the customer's address the first time
// an order moves to Processing.
func (s *Service) ensureShipment(ctx context.Context, order *models.Order) error {
	if order.ShipmentID != "" {
		return nil
	}

	address, err := s.addresses.GetByCustomerID(ctx, order.CustomerID)
	if err != nil {
		return err
	}
	if address == nil {
		return apperrors.NotFound("no address found for customer %s", order.CustomerID)
	}

	dest := address.Destination()
	availability, err := s.logistics.CheckAvailability(ctx, dest)
	if err != nil {
		return err
	}
	if availability == nil || !availability.Valid {
		return apperrors.InvalidState("address for customer %s is not serviceable", order.CustomerID)
	}

	shipment, err := s.logistics.CreateShipment(ctx, models.ShipmentRequest{
		OrderID:      order.ID,
		Status:       models.ShipmentStatusPending,
		DispatchDate: nil,
		Carrier:      s.opts.DefaultCarrier,
		ServiceLevel: s.opts.DefaultServiceLevel,
		Destination:  dest,
	})
	if err != nil {
		return err
	}
	if shipment == nil || shipment.ID == "" {
		return apperrors.Remote("shipment creation for order %s returned no identifier", order.ID)
	}

	order.ShipmentID = shipment.ID
	s.logger.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"shipment_id": shipment.ID,
	}).Info("Shipment created")
	return nil
}

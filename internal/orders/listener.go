package orders

import (
	"context"
	"errors"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/internal/events"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/sirupsen/logrus"
)

// ShipmentListener advances orders when logistics reports shipment
// progress. A shipment going InTransit moves a Processing order to
// InTransit; a delivered shipment completes an InTransit order. Anything
// else is acknowledged and ignored.
type ShipmentListener struct {
	service *Service
	logger  *logrus.Logger
}

func NewShipmentListener(service *Service, logger *logrus.Logger) *ShipmentListener {
	return &ShipmentListener{service: service, logger: logger}
}

func (l *ShipmentListener) HandleShipmentStatus(ctx context.Context, event events.ShipmentStatusEvent) error {
	log := l.logger.WithFields(logrus.Fields{
		"order_id":        event.OrderID,
		"shipment_id":     event.ShipmentID,
		"shipment_status": event.Status,
	})

	order, err := l.service.repo.GetByID(ctx, event.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		log.Warn("Shipment event for unknown order, ignoring")
		return nil
	}
	if order.ShipmentID != event.ShipmentID {
		log.WithField("order_shipment_id", order.ShipmentID).Warn("Shipment event does not match the order's shipment, ignoring")
		return nil
	}

	target, ok := shipmentTarget(order.Status, event.Status)
	if !ok {
		log.WithField("order_status", order.Status).Debug("No order transition for shipment event")
		return nil
	}

	updated, err := l.service.PatchOrderStatus(ctx, order.ID, target)
	if err != nil {
		return err
	}
	if updated {
		log.WithField("to_status", target).Info("Order advanced from shipment event")
	}
	return nil
}

func shipmentTarget(current models.OrderStatus, shipment models.ShipmentStatus) (models.OrderStatus, bool) {
	switch {
	case shipment == models.ShipmentStatusInTransit && current == models.OrderStatusProcessing:
		return models.OrderStatusInTransit, true
	case shipment == models.ShipmentStatusDelivered && current == models.OrderStatusInTransit:
		return models.OrderStatusCompleted, true
	}
	return "", false
}

// IsRetryable retries remote outages and lost optimistic-concurrency races.
func (l *ShipmentListener) IsRetryable(err error) bool {
	return errors.Is(err, apperrors.ErrRemoteService) || errors.Is(err, apperrors.ErrConflict)
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/internal/events"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/sirupsen/logrus"
)

func newListener(f *fixture) *ShipmentListener {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewShipmentListener(f.svc, logger)
}

func TestShipmentListenerAdvancesOrders(t *testing.T) {
	tests := []struct {
		name     string
		current  models.OrderStatus
		shipment models.ShipmentStatus
		want     models.OrderStatus
	}{
		{"dispatched", models.OrderStatusProcessing, models.ShipmentStatusInTransit, models.OrderStatusInTransit},
		{"delivered", models.OrderStatusInTransit, models.ShipmentStatusDelivered, models.OrderStatusCompleted},
		{"pending_shipment_ignored", models.OrderStatusProcessing, models.ShipmentStatusPending, models.OrderStatusProcessing},
		{"delivered_before_dispatch_ignored", models.OrderStatusProcessing, models.ShipmentStatusDelivered, models.OrderStatusProcessing},
		{"terminal_order_ignored", models.OrderStatusCancelled, models.ShipmentStatusInTransit, models.OrderStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.logistics.status = tt.shipment
			order := f.seed(t, tt.current, "S1", productItem("P1", 1, "1.00"))

			err := newListener(f).HandleShipmentStatus(ctx, events.ShipmentStatusEvent{
				ShipmentID: "S1",
				OrderID:    order.ID,
				Status:     tt.shipment,
			})
			if err != nil {
				t.Fatalf("HandleShipmentStatus() error: %v", err)
			}

			stored, _ := f.svc.GetOrder(ctx, order.ID)
			if stored.Status != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, stored.Status)
			}
		})
	}
}

func TestShipmentListenerIgnoresMismatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listener := newListener(f)
	order := f.seed(t, models.OrderStatusProcessing, "S1", productItem("P1", 1, "1.00"))

	if err := listener.HandleShipmentStatus(ctx, events.ShipmentStatusEvent{ShipmentID: "S1", OrderID: "unknown", Status: models.ShipmentStatusInTransit}); err != nil {
		t.Errorf("Expected unknown order to be ignored, got %v", err)
	}
	if err := listener.HandleShipmentStatus(ctx, events.ShipmentStatusEvent{ShipmentID: "S9", OrderID: order.ID, Status: models.ShipmentStatusInTransit}); err != nil {
		t.Errorf("Expected foreign shipment to be ignored, got %v", err)
	}

	stored, _ := f.svc.GetOrder(ctx, order.ID)
	if stored.Status != models.OrderStatusProcessing {
		t.Errorf("Expected order untouched, got %s", stored.Status)
	}
}

func TestShipmentListenerSurfacesRemoteFailure(t *testing.T) {
	f := newFixture(t)
	listener := newListener(f)
	f.products.fail["reduce:product:P1"] = apperrors.Remote("product-service unavailable")
	order := f.seed(t, models.OrderStatusInTransit, "S1", productItem("P1", 1, "1.00"))

	err := listener.HandleShipmentStatus(context.Background(), events.ShipmentStatusEvent{
		ShipmentID: "S1",
		OrderID:    order.ID,
		Status:     models.ShipmentStatusDelivered,
	})
	if !errors.Is(err, apperrors.ErrRemoteService) {
		t.Fatalf("Expected remote service error, got %v", err)
	}
	if !listener.IsRetryable(err) {
		t.Error("Expected remote failure to be retryable")
	}
}

func TestShipmentListenerIsRetryable(t *testing.T) {
	listener := newListener(newFixture(t))
	tests := []struct {
		err  error
		want bool
	}{
		{apperrors.Remote("down"), true},
		{fmt.Errorf("wrapped: %w", apperrors.Conflict("stale")), true},
		{apperrors.InvalidState("not dispatched"), false},
		{apperrors.Validation("bad id"), false},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := listener.IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

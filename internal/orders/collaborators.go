package orders

import (
	"context"

	"github.com/jogardn/order-orchestrator/internal/events"
	"github.com/jogardn/order-orchestrator/pkg/models"
)

// Repository persists the order aggregate. GetByID returns nil, nil for an
// unknown id; Update returns false, nil for one.
type Repository interface {
	Add(ctx context.Context, order *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context) ([]*models.Order, error)
	Update(ctx context.Context, order *models.Order) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type AddressFinder interface {
	GetByCustomerID(ctx context.Context, customerID string) (*models.Address, error)
}

type ProductClient interface {
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
	GetVariant(ctx context.Context, variantID string) (*models.Product, error)
	ReserveProductStock(ctx context.Context, productID string, quantity int) error
	ReserveVariantStock(ctx context.Context, variantID string, quantity int) error
	ReleaseProductStock(ctx context.Context, productID string, quantity int) error
	ReleaseVariantStock(ctx context.Context, variantID string, quantity int) error
	ReduceProductStock(ctx context.Context, productID string, quantity int) error
	ReduceVariantStock(ctx context.Context, variantID string, quantity int) error
}

type LogisticsClient interface {
	CreateShipment(ctx context.Context, req models.ShipmentRequest) (*models.Shipment, error)
	GetShipment(ctx context.Context, shipmentID string) (*models.Shipment, error)
	UpdateShipment(ctx context.Context, shipmentID string, status models.ShipmentStatus) error
	CheckAvailability(ctx context.Context, dest models.Destination) (*models.Availability, error)
}

// Journal records each status change attempt so an interrupted one can be
// found after a crash.
type Journal interface {
	Begin(ctx context.Context, record models.TransitionRecord) error
	Finish(ctx context.Context, id string, state models.TransitionState, cause string) error
	Pending(ctx context.Context) ([]models.TransitionRecord, error)
	ForOrder(ctx context.Context, orderID string) ([]models.TransitionRecord, error)
}

type EventPublisher interface {
	PublishOrderCreated(event events.OrderCreatedEvent) error
	PublishOrderStatusChanged(event events.OrderStatusChangedEvent) error
}

type WebSocketHub interface {
	Broadcast(messageType string, data interface{}, source string)
}

// Package orders owns the order lifecycle: pricing and reserving stock at
// creation, and running the side effects each status transition requires
// against the product and logistics services before the new status is
// persisted.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/internal/events"
	"github.com/jogardn/order-orchestrator/internal/websocket"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/sirupsen/logrus"
)

const eventSource = "order-service"

type Options struct {
	DefaultCarrier      string
	DefaultServiceLevel string
}

type Service struct {
	repo      Repository
	addresses AddressFinder
	products  ProductClient
	logistics LogisticsClient
	journal   Journal
	publisher EventPublisher
	hub       WebSocketHub
	logger    *logrus.Logger
	opts      Options

	now   func() time.Time
	newID func() string
}

func NewService(repo Repository, addresses AddressFinder, products ProductClient, logistics LogisticsClient, journal Journal, logger *logrus.Logger, opts Options) *Service {
	if opts.DefaultCarrier == "" {
		opts.DefaultCarrier = "DefaultCarrier"
	}
	if opts.DefaultServiceLevel == "" {
		opts.DefaultServiceLevel = "Standard"
	}
	return &Service{
		repo:      repo,
		addresses: addresses,
		products:  products,
		logistics: logistics,
		journal:   journal,
		publisher: events.NopPublisher{},
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

func (s *Service) SetEventPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

func (s *Service) SetWebSocketHub(hub WebSocketHub) {
	s.hub = hub
}

// CreateOrder prices every requested item from the product service, reserves
// its stock and stores the order as Pending. A failure part way through
// leaves earlier reservations in place.
func (s *Service) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.OrderRead, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:         s.newID(),
		CustomerID: req.CustomerID,
		CreatedAt:  s.now().UTC(),
		Status:     models.OrderStatusPending,
		Items:      make([]models.OrderItem, 0, len(req.Items)),
	}

	for _, requested := range req.Items {
		item := models.OrderItem{
			ID:               s.newID(),
			ProductID:        requested.ProductID,
			ProductVariantID: requested.ProductVariantID,
			Quantity:         requested.Quantity,
		}
		if err := s.priceAndReserve(ctx, &item); err != nil {
			s.warnUnreleased(order, err)
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	order.TotalAmount = order.ComputeTotal()

	saved, err := s.repo.Add(ctx, order)
	if err != nil {
		s.warnUnreleased(order, err)
		return nil, fmt.Errorf("save order %s: %w", order.ID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     saved.ID,
		"customer_id":  saved.CustomerID,
		"total_amount": saved.TotalAmount.StringFixed(2),
		"items_count":  len(saved.Items),
	}).Info("Order created")

	if err := s.publisher.PublishOrderCreated(events.OrderCreatedEvent{
		OrderID:     saved.ID,
		CustomerID:  saved.CustomerID,
		TotalAmount: saved.TotalAmount,
		ItemCount:   len(saved.Items),
		CreatedAt:   saved.CreatedAt,
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", saved.ID).Error("Failed to publish order created event")
	}

	read := saved.ToRead()
	s.broadcast(websocket.MessageOrderCreated, read)
	return &read, nil
}

func validateCreate(req models.CreateOrderRequest) error {
	if req.CustomerID == "" {
		return apperrors.Validation("customer_id is required")
	}
	return validateItems(req.Items)
}

func validateItems(items []models.OrderItemRequest) error {
	if len(items) == 0 {
		return apperrors.Validation("order must contain at least one item")
	}
	for i, item := range items {
		if item.ProductID == "" {
			return apperrors.Validation("item %d: product_id is required", i)
		}
		if item.Quantity <= 0 {
			return apperrors.Validation("item %d: quantity must be positive", i)
		}
	}
	return nil
}

// priceAndReserve resolves the unit price and reserves stock against the
// variant when the item names one, otherwise against the product.
func (s *Service) priceAndReserve(ctx context.Context, item *models.OrderItem) error {
	var (
		product *models.Product
		err     error
	)
	if item.HasVariant() {
		if product, err = s.products.GetVariant(ctx, item.ProductVariantID); err != nil {
			return err
		}
		if err := s.products.ReserveVariantStock(ctx, item.ProductVariantID, item.Quantity); err != nil {
			return err
		}
	} else {
		if product, err = s.products.GetProduct(ctx, item.ProductID); err != nil {
			return err
		}
		if err := s.products.ReserveProductStock(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	item.UnitPrice = product.Price
	return nil
}

func (s *Service) warnUnreleased(order *models.Order, cause error) {
	if len(order.Items) == 0 {
		return
	}
	reserved := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		reserved = append(reserved, fmt.Sprintf("%s x%d", stockTarget(item), item.Quantity))
	}
	s.logger.WithError(cause).WithFields(logrus.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"reserved":    reserved,
	}).Warn("Order change failed after reserving stock; reservations were not released")
}

func stockTarget(item models.OrderItem) string {
	if item.HasVariant() {
		return "variant:" + item.ProductVariantID
	}
	return "product:" + item.ProductID
}

func (s *Service) GetOrder(ctx context.Context, id string) (*models.OrderRead, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil || order == nil {
		return nil, err
	}
	read := order.ToRead()
	return &read, nil
}

func (s *Service) ListOrders(ctx context.Context) ([]models.OrderRead, error) {
	orders, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.OrderRead, 0, len(orders))
	for _, order := range orders {
		out = append(out, order.ToRead())
	}
	return out, nil
}

// DeleteOrder removes the order and its items without touching stock or
// shipments.
func (s *Service) DeleteOrder(ctx context.Context, id string) (bool, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err == nil && deleted {
		s.logger.WithField("order_id", id).Info("Order deleted")
	}
	return deleted, err
}

// History returns the journaled status change attempts for an order.
func (s *Service) History(ctx context.Context, id string) ([]models.TransitionRecord, error) {
	if id == "" {
		return nil, apperrors.Validation("order identifier cannot be empty")
	}
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperrors.NotFound("Order %s not found", id)
	}
	return s.journal.ForOrder(ctx, id)
}

// ReportInterruptedTransitions logs every journaled transition that started
// but never finished. Those orders may have had stock or shipment side
// effects applied without the new status being stored.
func (s *Service) ReportInterruptedTransitions(ctx context.Context) (int, error) {
	pending, err := s.journal.Pending(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range pending {
		s.logger.WithFields(logrus.Fields{
			"transition_id": rec.ID,
			"order_id":      rec.OrderID,
			"from_status":   rec.FromStatus,
			"to_status":     rec.ToStatus,
			"started_at":    rec.StartedAt,
		}).Warn("Interrupted order transition needs reconciliation")
	}
	return len(pending), nil
}

func (s *Service) broadcast(messageType string, data interface{}) {
	if s.hub != nil {
		s.hub.Broadcast(messageType, data, eventSource)
	}
}

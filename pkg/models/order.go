package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusInTransit  OrderStatus = "InTransit"
	OrderStatusCompleted  OrderStatus = "Completed"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusInTransit,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is the aggregate root. Items are owned by the order and are
// persisted and deleted with it.
type Order struct {
	ID          string
	CustomerID  string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
	Status      OrderStatus
	ShipmentID  string
	TotalAmount decimal.Decimal
	Items       []OrderItem
	// Version is bumped by the repository on every successful update.
	Version int
}

type OrderItem struct {
	ID               string
	ProductID        string
	ProductVariantID string
	Quantity         int
	UnitPrice        decimal.Decimal
}

func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// HasVariant reports whether stock and price operations target a variant
// rather than the base product.
func (i OrderItem) HasVariant() bool {
	return i.ProductVariantID != ""
}

// ComputeTotal sums unit price times quantity over all items.
func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.TotalPrice())
	}
	return total
}

// Clone returns a deep copy so callers never share item slices with a store.
func (o *Order) Clone() *Order {
	c := *o
	if o.UpdatedAt != nil {
		t := *o.UpdatedAt
		c.UpdatedAt = &t
	}
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

type OrderItemRequest struct {
	ProductID        string `json:"product_id"`
	ProductVariantID string `json:"product_variant_id,omitempty"`
	Quantity         int    `json:"quantity"`
}

type CreateOrderRequest struct {
	CustomerID string             `json:"customer_id"`
	Items      []OrderItemRequest `json:"items"`
}

// UpdateOrderItemsRequest replaces every item of a Pending order.
type UpdateOrderItemsRequest struct {
	Items []OrderItemRequest `json:"items"`
}

type PatchOrderRequest struct {
	Status OrderStatus `json:"status"`
}

type OrderItemRead struct {
	ID               string          `json:"id"`
	ProductID        string          `json:"product_id"`
	ProductVariantID string          `json:"product_variant_id,omitempty"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	TotalPrice       decimal.Decimal `json:"total_price"`
}

type OrderRead struct {
	ID          string          `json:"id"`
	CustomerID  string          `json:"customer_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
	Status      OrderStatus     `json:"status"`
	ShipmentID  string          `json:"shipment_id,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItemRead `json:"items"`
}

// ToRead builds the read representation, deriving each item's total price.
func (o *Order) ToRead() OrderRead {
	read := OrderRead{
		ID:          o.ID,
		CustomerID:  o.CustomerID,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
		Status:      o.Status,
		ShipmentID:  o.ShipmentID,
		TotalAmount: o.TotalAmount,
		Items:       make([]OrderItemRead, 0, len(o.Items)),
	}
	for _, item := range o.Items {
		read.Items = append(read.Items, OrderItemRead{
			ID:               item.ID,
			ProductID:        item.ProductID,
			ProductVariantID: item.ProductVariantID,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice,
			TotalPrice:       item.TotalPrice(),
		})
	}
	return read
}

type OrderResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Order   *OrderRead `json:"order,omitempty"`
}

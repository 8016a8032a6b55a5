package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the subset of the product service payload the order service
// reads. Variants share the same shape.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name,omitempty"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock,omitempty"`
}

type ShipmentStatus string

const (
	ShipmentStatusPending   ShipmentStatus = "Pending"
	ShipmentStatusInTransit ShipmentStatus = "InTransit"
	ShipmentStatusDelivered ShipmentStatus = "Delivered"
	ShipmentStatusCancelled ShipmentStatus = "Cancelled"
)

type Destination struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type ShipmentRequest struct {
	OrderID      string         `json:"orderId"`
	Status       ShipmentStatus `json:"status"`
	DispatchDate *time.Time     `json:"dispatchDate"`
	Carrier      string         `json:"carrier"`
	ServiceLevel string         `json:"serviceLevel"`
	Destination
}

type Shipment struct {
	ID           string         `json:"id"`
	OrderID      string         `json:"orderId"`
	Status       ShipmentStatus `json:"status"`
	DispatchDate *time.Time     `json:"dispatchDate,omitempty"`
	Carrier      string         `json:"carrier,omitempty"`
	ServiceLevel string         `json:"serviceLevel,omitempty"`
	Destination
}

type Availability struct {
	Valid bool `json:"valid"`
}

package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/shopspring/decimal"
)

type stockItem struct {
	product  models.Product
	reserved int
}

// FulfillmentStore holds the mock catalogue and shipments in memory.
type FulfillmentStore struct {
	mutex     sync.RWMutex
	products  map[string]*stockItem
	variants  map[string]*stockItem
	shipments map[string]*models.Shipment
}

func NewFulfillmentStore() *FulfillmentStore {
	return &FulfillmentStore{
		products:  make(map[string]*stockItem),
		variants:  make(map[string]*stockItem),
		shipments: make(map[string]*models.Shipment),
	}
}

// seedCatalogue loads a small fixed catalogue so the order service can be
// exercised without any setup calls.
func (s *FulfillmentStore) seedCatalogue() {
	for _, p := range []struct {
		id, name, price string
		stock           int
	}{
		{"P1", "Widget", "19.99", 100},
		{"P2", "Gadget", "5.25", 50},
		{"P3", "Gizmo", "120.00", 10},
	} {
		s.products[p.id] = &stockItem{product: models.Product{
			ID: p.id, Name: p.name, Price: decimal.RequireFromString(p.price), Stock: p.stock,
		}}
	}
	for _, v := range []struct {
		id, name, price string
		stock           int
	}{
		{"V1", "Widget (red)", "21.50", 25},
		{"V2", "Widget (blue)", "21.50", 0},
	} {
		s.variants[v.id] = &stockItem{product: models.Product{
			ID: v.id, Name: v.name, Price: decimal.RequireFromString(v.price), Stock: v.stock,
		}}
	}
}

func (s *FulfillmentStore) catalogue(variant bool) map[string]*stockItem {
	if variant {
		return s.variants
	}
	return s.products
}

func (s *FulfillmentStore) Get(variant bool, id string) (models.Product, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	item, ok := s.catalogue(variant)[id]
	if !ok {
		return models.Product{}, false
	}
	p := item.product
	p.Stock -= item.reserved
	return p, true
}

func (s *FulfillmentStore) Put(variant bool, p models.Product) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.catalogue(variant)[p.ID] = &stockItem{product: p}
}

var errInsufficientStock = errors.New("insufficient stock")

// ModifyStock applies a reserve, release or reduce operation. Reduce
// consumes a previous reservation before touching free stock.
func (s *FulfillmentStore) ModifyStock(variant bool, id, op string, quantity int) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	item, ok := s.catalogue(variant)[id]
	if !ok {
		return false, nil
	}

	switch op {
	case "reserve":
		if item.product.Stock-item.reserved < quantity {
			return true, errInsufficientStock
		}
		item.reserved += quantity
	case "release":
		item.reserved -= quantity
		if item.reserved < 0 {
			item.reserved = 0
		}
	case "reduce":
		if item.product.Stock < quantity {
			return true, errInsufficientStock
		}
		item.product.Stock -= quantity
		item.reserved -= quantity
		if item.reserved < 0 {
			item.reserved = 0
		}
	default:
		return true, fmt.Errorf("unknown stock operation %q", op)
	}
	return true, nil
}

func (s *FulfillmentStore) CreateShipment(req models.ShipmentRequest) *models.Shipment {
	shipment := &models.Shipment{
		ID:           "SHP-" + uuid.New().String()[:8],
		OrderID:      req.OrderID,
		Status:       req.Status,
		DispatchDate: req.DispatchDate,
		Carrier:      req.Carrier,
		ServiceLevel: req.ServiceLevel,
		Destination:  req.Destination,
	}
	if shipment.Status == "" {
		shipment.Status = models.ShipmentStatusPending
	}

	s.mutex.Lock()
	s.shipments[shipment.ID] = shipment
	s.mutex.Unlock()

	copied := *shipment
	return &copied
}

func (s *FulfillmentStore) GetShipment(id string) (models.Shipment, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	shipment, ok := s.shipments[id]
	if !ok {
		return models.Shipment{}, false
	}
	return *shipment, true
}

// SetShipmentStatus stamps the dispatch date the first time a shipment goes
// in transit.
func (s *FulfillmentStore) SetShipmentStatus(id string, status models.ShipmentStatus, now time.Time) (models.Shipment, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	shipment, ok := s.shipments[id]
	if !ok {
		return models.Shipment{}, false
	}
	shipment.Status = status
	if status == models.ShipmentStatusInTransit && shipment.DispatchDate == nil {
		dispatched := now.UTC()
		shipment.DispatchDate = &dispatched
	}
	return *shipment, true
}

func (s *FulfillmentStore) ListShipments() []models.Shipment {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	shipments := make([]models.Shipment, 0, len(s.shipments))
	for _, shipment := range s.shipments {
		shipments = append(shipments, *shipment)
	}
	return shipments
}

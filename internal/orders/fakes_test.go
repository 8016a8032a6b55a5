package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/internal/events"
	"github.com/jogardn/order-orchestrator/internal/storage/memory"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type stockCall struct {
	Op  string // reserve, release, reduce
	ID  string // "product:<id>" or "variant:<id>"
	Qty int
}

// fakeProducts records every stock call and serves prices from a map.
type fakeProducts struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	fail   map[string]error
	calls  []stockCall
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{
		prices: make(map[string]decimal.Decimal),
		fail:   make(map[string]error),
	}
}

func (f *fakeProducts) setPrice(target, price string) {
	f.prices[target] = decimal.RequireFromString(price)
}

func (f *fakeProducts) get(target, label, id string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail["get:"+target]; err != nil {
		return nil, err
	}
	price, ok := f.prices[target]
	if !ok {
		return nil, apperrors.NotFound("%s %s not found", label, id)
	}
	return &models.Product{ID: id, Price: price}, nil
}

func (f *fakeProducts) stock(op, target string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[op+":"+target]; err != nil {
		return err
	}
	f.calls = append(f.calls, stockCall{Op: op, ID: target, Qty: qty})
	return nil
}

func (f *fakeProducts) recorded() []stockCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stockCall(nil), f.calls...)
}

func (f *fakeProducts) reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeProducts) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return f.get("product:"+id, "Product", id)
}

func (f *fakeProducts) GetVariant(ctx context.Context, id string) (*models.Product, error) {
	return f.get("variant:"+id, "Product Variant", id)
}

func (f *fakeProducts) ReserveProductStock(ctx context.Context, id string, qty int) error {
	return f.stock("reserve", "product:"+id, qty)
}

func (f *fakeProducts) ReserveVariantStock(ctx context.Context, id string, qty int) error {
	return f.stock("reserve", "variant:"+id, qty)
}

func (f *fakeProducts) ReleaseProductStock(ctx context.Context, id string, qty int) error {
	return f.stock("release", "product:"+id, qty)
}

func (f *fakeProducts) ReleaseVariantStock(ctx context.Context, id string, qty int) error {
	return f.stock("release", "variant:"+id, qty)
}

func (f *fakeProducts) ReduceProductStock(ctx context.Context, id string, qty int) error {
	return f.stock("reduce", "product:"+id, qty)
}

func (f *fakeProducts) ReduceVariantStock(ctx context.Context, id string, qty int) error {
	return f.stock("reduce", "variant:"+id, qty)
}

type shipmentUpdate struct {
	ID     string
	Status models.ShipmentStatus
}

type fakeLogistics struct {
	mu sync.Mutex

	valid       bool
	availErr    error
	availChecks []models.Destination
	createID    string
	createErr   error
	created     []models.ShipmentRequest
	status      models.ShipmentStatus
	getErr      error
	updates     []shipmentUpdate
	updateErr   error
}

func (f *fakeLogistics) CreateShipment(ctx context.Context, req models.ShipmentRequest) (*models.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &models.Shipment{ID: f.createID, OrderID: req.OrderID, Status: req.Status}, nil
}

func (f *fakeLogistics) GetShipment(ctx context.Context, id string) (*models.Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &models.Shipment{ID: id, Status: f.status}, nil
}

func (f *fakeLogistics) UpdateShipment(ctx context.Context, id string, status models.ShipmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, shipmentUpdate{ID: id, Status: status})
	return nil
}

func (f *fakeLogistics) CheckAvailability(ctx context.Context, dest models.Destination) (*models.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.availChecks = append(f.availChecks, dest)
	if f.availErr != nil {
		return nil, f.availErr
	}
	return &models.Availability{Valid: f.valid}, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	created []events.OrderCreatedEvent
	changed []events.OrderStatusChangedEvent
	err     error
}

func (p *recordingPublisher) PublishOrderCreated(e events.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return p.err
}

func (p *recordingPublisher) PublishOrderStatusChanged(e events.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return p.err
}

type recordingHub struct {
	mu    sync.Mutex
	types []string
}

func (h *recordingHub) Broadcast(messageType string, data interface{}, source string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.types = append(h.types, messageType)
}

type fixture struct {
	svc       *Service
	repo      *memory.OrderRepository
	addresses *memory.AddressRepository
	journal   *memory.TransitionJournal
	products  *fakeProducts
	logistics *fakeLogistics
	publisher *recordingPublisher
	hub       *recordingHub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	f := &fixture{
		repo:      memory.NewOrderRepository(),
		addresses: memory.NewAddressRepository(),
		journal:   memory.NewTransitionJournal(),
		products:  newFakeProducts(),
		logistics: &fakeLogistics{valid: true, createID: "S1", status: models.ShipmentStatusPending},
		publisher: &recordingPublisher{},
		hub:       &recordingHub{},
	}
	f.svc = NewService(f.repo, f.addresses, f.products, f.logistics, f.journal, logger, Options{})
	f.svc.SetEventPublisher(f.publisher)
	f.svc.SetWebSocketHub(f.hub)
	return f
}

func (f *fixture) addAddress(t *testing.T, customerID string) *models.Address {
	t.Helper()
	addr := &models.Address{
		ID:         "addr-" + customerID,
		CustomerID: customerID,
		Street:     "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Country:    "US",
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := f.addresses.Add(context.Background(), addr); err != nil {
		t.Fatal(err)
	}
	return addr
}

// seed stores an order directly, bypassing creation side effects.
func (f *fixture) seed(t *testing.T, status models.OrderStatus, shipmentID string, items ...models.OrderItem) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:         "order-" + string(status),
		CustomerID: "C",
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:     status,
		ShipmentID: shipmentID,
		Items:      items,
	}
	order.TotalAmount = order.ComputeTotal()
	saved, err := f.repo.Add(context.Background(), order)
	if err != nil {
		t.Fatal(err)
	}
	return saved
}

func productItem(id string, qty int, price string) models.OrderItem {
	return models.OrderItem{ID: "item-" + id, ProductID: id, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func variantItem(productID, variantID string, qty int, price string) models.OrderItem {
	item := productItem(productID, qty, price)
	item.ID = "item-" + variantID
	item.ProductVariantID = variantID
	return item
}

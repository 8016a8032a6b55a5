package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// openTestDB connects to ORDERS_TEST_DSN and skips when it is not set.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("ORDERS_TEST_DSN")
	if dsn == "" {
		t.Skip("ORDERS_TEST_DSN not set")
	}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	ctx := context.Background()
	db, err := Open(ctx, dsn, 1, logger)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := CreateTables(ctx, db); err != nil {
		t.Fatalf("CreateTables() error: %v", err)
	}
	return db
}

func TestOrderRepositoryIntegration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	id := uuid.New().String()
	order := &models.Order{
		ID:          id,
		CustomerID:  "c1",
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
		Status:      models.OrderStatusPending,
		TotalAmount: decimal.RequireFromString("25.00"),
		Items: []models.OrderItem{
			{ID: uuid.New().String(), ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
			{ID: uuid.New().String(), ProductID: "p2", ProductVariantID: "v2", Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")},
		},
	}
	t.Cleanup(func() { repo.Delete(ctx, id) })

	if _, err := repo.Add(ctx, order); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if _, err := repo.Add(ctx, order); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("Expected conflict on duplicate insert, got %v", err)
	}

	got, err := repo.GetByID(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("GetByID() = %v, %v", got, err)
	}
	if !got.TotalAmount.Equal(decimal.RequireFromString("25")) {
		t.Errorf("Expected total 25.00, got %s", got.TotalAmount)
	}
	if len(got.Items) != 2 || got.Items[1].ProductVariantID != "v2" || got.Items[0].ProductVariantID != "" {
		t.Errorf("Unexpected items: %+v", got.Items)
	}

	stale := got.Clone()
	now := time.Now().UTC()
	got.Status = models.OrderStatusProcessing
	got.ShipmentID = "S1"
	got.UpdatedAt = &now
	if ok, err := repo.Update(ctx, got); err != nil || !ok {
		t.Fatalf("Update() = %v, %v", ok, err)
	}
	if _, err := repo.Update(ctx, stale); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("Expected conflict for stale version, got %v", err)
	}

	reloaded, _ := repo.GetByID(ctx, id)
	if reloaded.ShipmentID != "S1" || reloaded.Version != 2 || reloaded.UpdatedAt == nil {
		t.Errorf("Unexpected reloaded order: %+v", reloaded)
	}

	if ok, err := repo.Delete(ctx, id); err != nil || !ok {
		t.Fatalf("Delete() = %v, %v", ok, err)
	}
	if missing, err := repo.GetByID(ctx, id); err != nil || missing != nil {
		t.Errorf("Expected nil, nil after delete, got %v, %v", missing, err)
	}
}

func TestOrderRepositoryKeepsPriceScale(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	unitPrice := decimal.RequireFromString("0.005")
	order := &models.Order{
		ID:         uuid.New().String(),
		CustomerID: "c1",
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
		Status:     models.OrderStatusPending,
		Items: []models.OrderItem{
			{ID: uuid.New().String(), ProductID: "p1", Quantity: 3, UnitPrice: unitPrice},
		},
	}
	order.TotalAmount = order.ComputeTotal()
	t.Cleanup(func() { repo.Delete(ctx, order.ID) })

	if _, err := repo.Add(ctx, order); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	got, err := repo.GetByID(ctx, order.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID() = %v, %v", got, err)
	}
	if !got.Items[0].UnitPrice.Equal(unitPrice) {
		t.Errorf("Expected unit price 0.005, got %s", got.Items[0].UnitPrice)
	}
	if !got.TotalAmount.Equal(decimal.RequireFromString("0.015")) {
		t.Errorf("Expected total 0.015, got %s", got.TotalAmount)
	}
	if !got.TotalAmount.Equal(got.ComputeTotal()) {
		t.Errorf("Stored total %s does not match items %s", got.TotalAmount, got.ComputeTotal())
	}
}

func TestAddressAndJournalIntegration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	addresses := NewAddressRepository(db)
	journal := NewTransitionJournal(db)

	customer := uuid.New().String()
	addr := &models.Address{
		ID:         uuid.New().String(),
		CustomerID: customer,
		Street:     "1 Main St",
		City:       "Springfield",
		State:      "IL",
		PostalCode: "62701",
		Country:    "US",
		CreatedAt:  time.Now().UTC(),
	}
	t.Cleanup(func() { addresses.Delete(ctx, addr.ID) })

	if _, err := addresses.Add(ctx, addr); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	got, err := addresses.GetByCustomerID(ctx, customer)
	if err != nil || got == nil || got.ID != addr.ID {
		t.Fatalf("GetByCustomerID() = %v, %v", got, err)
	}

	rec := models.TransitionRecord{
		ID:         uuid.New().String(),
		OrderID:    uuid.New().String(),
		FromStatus: models.OrderStatusPending,
		ToStatus:   models.OrderStatusProcessing,
		StartedAt:  time.Now().UTC(),
	}
	if err := journal.Begin(ctx, rec); err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	if err := journal.Finish(ctx, rec.ID, models.TransitionFailed, "boom"); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}
	history, err := journal.ForOrder(ctx, rec.OrderID)
	if err != nil || len(history) != 1 {
		t.Fatalf("ForOrder() = %v, %v", history, err)
	}
	if history[0].State != models.TransitionFailed || history[0].Error != "boom" {
		t.Errorf("Unexpected record: %+v", history[0])
	}
}

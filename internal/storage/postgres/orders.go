package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/pkg/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const selectOrder = `
	SELECT id, customer_id, total_amount, status, shipment_id, created_at, updated_at, version
	FROM orders`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		order      models.Order
		shipmentID sql.NullString
		updatedAt  sql.NullTime
	)
	err := row.Scan(&order.ID, &order.CustomerID, &order.TotalAmount, &order.Status,
		&shipmentID, &order.CreatedAt, &updatedAt, &order.Version)
	if err != nil {
		return nil, err
	}
	order.ShipmentID = shipmentID.String
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = timePtr(updatedAt)
	return &order, nil
}

// Add inserts the order and its items in one transaction.
func (r *OrderRepository) Add(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order == nil {
		return nil, apperrors.Validation("order cannot be nil")
	}
	if order.ID == "" {
		return nil, apperrors.Validation("order identifier cannot be empty")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, total_amount, status, shipment_id, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1)`,
		order.ID, order.CustomerID, order.TotalAmount, order.Status,
		nullString(order.ShipmentID), order.CreatedAt, nullTime(order.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Conflict("order %s already exists", order.ID)
		}
		return nil, err
	}

	if err := insertItems(ctx, tx, order); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.Version = 1
	return order.Clone(), nil
}

func insertItems(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	for i, item := range order.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, product_variant_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, order.ID, i, item.ProductID, nullString(item.ProductVariantID),
			item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	if id == "" {
		return nil, apperrors.Validation("order identifier cannot be empty")
	}

	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// List returns orders newest first, ties broken by id.
func (r *OrderRepository) List(ctx context.Context) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrder+` ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []*models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for _, order := range orders {
		if err := r.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_variant_id, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY position`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	order.Items = []models.OrderItem{}
	for rows.Next() {
		var (
			item    models.OrderItem
			variant sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &variant, &item.Quantity, &item.UnitPrice); err != nil {
			return err
		}
		item.ProductVariantID = variant.String
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

// Update writes the order back when the stored version matches the caller's
// copy. Items are replaced wholesale.
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) (bool, error) {
	if order == nil {
		return false, apperrors.Validation("order cannot be nil")
	}
	if order.ID == "" {
		return false, apperrors.Validation("order identifier cannot be empty")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET customer_id = $1, total_amount = $2, status = $3, shipment_id = $4,
			updated_at = $5, version = version + 1
		WHERE id = $6 AND version = $7`,
		order.CustomerID, order.TotalAmount, order.Status, nullString(order.ShipmentID),
		nullTime(order.UpdatedAt), order.ID, order.Version)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	if affected == 0 {
		var stored int
		err := tx.QueryRowContext(ctx, `SELECT version FROM orders WHERE id = $1`, order.ID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return false, apperrors.Conflict("order %s was modified concurrently (version %d, stored %d)",
			order.ID, order.Version, stored)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return false, err
	}
	if err := insertItems(ctx, tx, order); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	order.Version++
	return true, nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, apperrors.Validation("order identifier cannot be empty")
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *OrderRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

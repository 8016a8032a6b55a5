package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/pkg/models"
)

type AddressRepository struct {
	db *sql.DB
}

func NewAddressRepository(db *sql.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

const selectAddress = `
	SELECT id, customer_id, street, city, state, postal_code, country, created_at, updated_at
	FROM addresses`

func scanAddress(row rowScanner) (*models.Address, error) {
	var (
		a         models.Address
		updatedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.CustomerID, &a.Street, &a.City, &a.State,
		&a.PostalCode, &a.Country, &a.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = timePtr(updatedAt)
	return &a, nil
}

func (r *AddressRepository) Add(ctx context.Context, address *models.Address) (*models.Address, error) {
	if address == nil {
		return nil, apperrors.Validation("address cannot be nil")
	}
	if address.ID == "" {
		return nil, apperrors.Validation("address identifier cannot be empty")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO addresses (id, customer_id, street, city, state, postal_code, country, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		address.ID, address.CustomerID, address.Street, address.City, address.State,
		address.PostalCode, address.Country, address.CreatedAt, nullTime(address.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.Conflict("address %s already exists", address.ID)
		}
		return nil, err
	}
	out := *address
	return &out, nil
}

func (r *AddressRepository) GetByID(ctx context.Context, id string) (*models.Address, error) {
	if id == "" {
		return nil, apperrors.Validation("address identifier cannot be empty")
	}
	return r.getOne(ctx, selectAddress+` WHERE id = $1`, id)
}

// GetByCustomerID returns the customer's earliest address when several exist.
func (r *AddressRepository) GetByCustomerID(ctx context.Context, customerID string) (*models.Address, error) {
	if customerID == "" {
		return nil, apperrors.Validation("customer identifier cannot be empty")
	}
	return r.getOne(ctx, selectAddress+` WHERE customer_id = $1 ORDER BY created_at, id LIMIT 1`, customerID)
}

func (r *AddressRepository) getOne(ctx context.Context, query string, arg string) (*models.Address, error) {
	address, err := scanAddress(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return address, err
}

func (r *AddressRepository) List(ctx context.Context) ([]*models.Address, error) {
	rows, err := r.db.QueryContext(ctx, selectAddress+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := []*models.Address{}
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}
	return addresses, rows.Err()
}

func (r *AddressRepository) Update(ctx context.Context, address *models.Address) (bool, error) {
	if address == nil {
		return false, apperrors.Validation("address cannot be nil")
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE addresses
		SET street = $1, city = $2, state = $3, postal_code = $4, country = $5, updated_at = $6
		WHERE id = $7`,
		address.Street, address.City, address.State, address.PostalCode, address.Country,
		nullTime(address.UpdatedAt), address.ID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *AddressRepository) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, apperrors.Validation("address identifier cannot be empty")
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

package models

import "time"

type Address struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customer_id"`
	Street     string     `json:"street"`
	City       string     `json:"city"`
	State      string     `json:"state"`
	PostalCode string     `json:"postal_code"`
	Country    string     `json:"country"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// Destination is the shipping view of an address sent to logistics.
func (a *Address) Destination() Destination {
	return Destination{
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type CreateAddressRequest struct {
	CustomerID string `json:"customer_id"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// UpdateAddressRequest is a partial update; nil fields are left unchanged.
type UpdateAddressRequest struct {
	Street     *string `json:"street,omitempty"`
	City       *string `json:"city,omitempty"`
	State      *string `json:"state,omitempty"`
	PostalCode *string `json:"postal_code,omitempty"`
	Country    *string `json:"country,omitempty"`
}

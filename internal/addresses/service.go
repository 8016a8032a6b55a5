// Package addresses manages customer shipping addresses. The order service
// reads them through GetByCustomerID when booking shipments.
package addresses

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/sirupsen/logrus"
)

type Repository interface {
	Add(ctx context.Context, address *models.Address) (*models.Address, error)
	GetByID(ctx context.Context, id string) (*models.Address, error)
	GetByCustomerID(ctx context.Context, customerID string) (*models.Address, error)
	List(ctx context.Context) ([]*models.Address, error)
	Update(ctx context.Context, address *models.Address) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type Service struct {
	repo   Repository
	logger *logrus.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *logrus.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, req models.CreateAddressRequest) (*models.Address, error) {
	fields := map[string]string{
		"customer_id": req.CustomerID,
		"street":      req.Street,
		"city":        req.City,
		"state":       req.State,
		"postal_code": req.PostalCode,
		"country":     req.Country,
	}
	var missing []string
	for _, name := range []string{"customer_id", "street", "city", "state", "postal_code", "country"} {
		if strings.TrimSpace(fields[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.Validation("missing required fields: %s", strings.Join(missing, ", "))
	}

	address, err := s.repo.Add(ctx, &models.Address{
		ID:         uuid.New().String(),
		CustomerID: req.CustomerID,
		Street:     req.Street,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"address_id":  address.ID,
		"customer_id": address.CustomerID,
	}).Info("Address created")
	return address, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Address, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByCustomerID(ctx context.Context, customerID string) (*models.Address, error) {
	return s.repo.GetByCustomerID(ctx, customerID)
}

func (s *Service) List(ctx context.Context) ([]*models.Address, error) {
	return s.repo.List(ctx)
}

// Update applies the non-nil fields of req. It returns nil, nil when the
// address does not exist.
func (s *Service) Update(ctx context.Context, id string, req models.UpdateAddressRequest) (*models.Address, error) {
	address, err := s.repo.GetByID(ctx, id)
	if err != nil || address == nil {
		return nil, err
	}

	for _, field := range []struct {
		value *string
		name  string
		dst   *string
	}{
		{req.Street, "street", &address.Street},
		{req.City, "city", &address.City},
		{req.State, "state", &address.State},
		{req.PostalCode, "postal_code", &address.PostalCode},
		{req.Country, "country", &address.Country},
	} {
		if field.value == nil {
			continue
		}
		if strings.TrimSpace(*field.value) == "" {
			return nil, apperrors.Validation("%s cannot be empty", field.name)
		}
		*field.dst = *field.value
	}

	now := s.now().UTC()
	address.UpdatedAt = &now
	updated, err := s.repo.Update(ctx, address)
	if err != nil || !updated {
		return nil, err
	}
	return address, nil
}

func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	return s.repo.Delete(ctx, id)
}

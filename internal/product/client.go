package product

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/internal/circuitbreaker"
	"github.com/jogardn/order-orchestrator/internal/remote"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const ServiceName = "product-service"

// Kind selects which catalogue resource a call targets.
type Kind int

const (
	KindProduct Kind = iota
	KindVariant
)

func (k Kind) resource() string {
	if k == KindVariant {
		return "product-variants"
	}
	return "products"
}

func (k Kind) label() string {
	if k == KindVariant {
		return "Product Variant"
	}
	return "Product"
}

type stockOp string

const (
	opReserve stockOp = "reserve"
	opRelease stockOp = "release"
	opReduce  stockOp = "reduce"
)

type Client struct {
	api    *remote.Client
	logger *logrus.Logger
}

func NewClient(baseURL string, timeout time.Duration, breakers *circuitbreaker.Manager, logger *logrus.Logger) *Client {
	var cb *circuitbreaker.CircuitBreaker
	if breakers != nil {
		cb = breakers.For(ServiceName, remote.IsBreakerFailure)
	}
	return &Client{
		api:    remote.New(ServiceName, baseURL, timeout, cb, logger),
		logger: logger,
	}
}

func (c *Client) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	return c.get(ctx, KindProduct, productID)
}

func (c *Client) GetVariant(ctx context.Context, variantID string) (*models.Product, error) {
	return c.get(ctx, KindVariant, variantID)
}

func (c *Client) ReserveProductStock(ctx context.Context, productID string, quantity int) error {
	return c.modifyStock(ctx, KindProduct, productID, opReserve, quantity)
}

func (c *Client) ReserveVariantStock(ctx context.Context, variantID string, quantity int) error {
	return c.modifyStock(ctx, KindVariant, variantID, opReserve, quantity)
}

func (c *Client) ReleaseProductStock(ctx context.Context, productID string, quantity int) error {
	return c.modifyStock(ctx, KindProduct, productID, opRelease, quantity)
}

func (c *Client) ReleaseVariantStock(ctx context.Context, variantID string, quantity int) error {
	return c.modifyStock(ctx, KindVariant, variantID, opRelease, quantity)
}

func (c *Client) ReduceProductStock(ctx context.Context, productID string, quantity int) error {
	return c.modifyStock(ctx, KindProduct, productID, opReduce, quantity)
}

func (c *Client) ReduceVariantStock(ctx context.Context, variantID string, quantity int) error {
	return c.modifyStock(ctx, KindVariant, variantID, opReduce, quantity)
}

func (c *Client) get(ctx context.Context, kind Kind, id string) (*models.Product, error) {
	if id == "" {
		return nil, apperrors.Validation("%s id cannot be empty", kind.label())
	}

	path := "/" + kind.resource() + "/" + url.PathEscape(id)
	resp, err := c.api.Do(ctx, http.MethodGet, path, nil, func(resp *remote.Response) error {
		switch resp.StatusCode {
		case http.StatusOK:
			return nil
		case http.StatusNotFound:
			return apperrors.NotFound("%s %s not found", kind.label(), id)
		default:
			return remote.UnexpectedStatus(ServiceName, "fetching "+kind.resource(), resp)
		}
	})
	if err != nil {
		return nil, err
	}

	// A null body or a missing price must not become a free line item.
	var payload struct {
		ID    string              `json:"id"`
		Name  string              `json:"name"`
		Price decimal.NullDecimal `json:"price"`
		Stock int                 `json:"stock"`
	}
	if err := resp.Decode(ServiceName, &payload); err != nil {
		return nil, err
	}
	if !payload.Price.Valid {
		return nil, apperrors.Remote("%s returned %s %s without a price", ServiceName, kind.label(), id)
	}
	if payload.Price.Decimal.IsNegative() {
		return nil, apperrors.Remote("%s returned negative price %s for %s %s", ServiceName, payload.Price.Decimal, kind.label(), id)
	}

	p := &models.Product{
		ID:    payload.ID,
		Name:  payload.Name,
		Price: payload.Price.Decimal,
		Stock: payload.Stock,
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

func (c *Client) modifyStock(ctx context.Context, kind Kind, id string, op stockOp, quantity int) error {
	if id == "" {
		return apperrors.Validation("%s id cannot be empty", kind.label())
	}
	if quantity <= 0 {
		return apperrors.Validation("quantity must be positive, got %d", quantity)
	}

	path := "/" + kind.resource() + "/" + url.PathEscape(id) + "/" + string(op)
	payload := map[string]int{"quantity": quantity}

	_, err := c.api.Do(ctx, http.MethodPatch, path, payload, func(resp *remote.Response) error {
		if !remote.IsSuccess(resp.StatusCode) {
			return remote.UnexpectedStatus(ServiceName, "modifying stock at "+path, resp)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"resource":  kind.resource(),
		"id":        id,
		"operation": string(op),
		"quantity":  quantity,
	}).Info("Stock updated in product service")
	return nil
}

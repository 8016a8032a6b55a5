package logistics

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/internal/circuitbreaker"
	"github.com/jogardn/order-orchestrator/internal/remote"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/sirupsen/logrus"
)

const ServiceName = "logistics-service"

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

// CreateShipment registers a shipment for an order. The logistics service
// answers 201 with the created shipment; a body without an id is returned
// as-is and left for the caller to reject.
func (c *Client) CreateShipment(ctx context.Context, req models.ShipmentRequest) (*models.Shipment, error) {
	c.logger.WithField("order_id", req.OrderID).Info("Creating shipment in logistics service")

	resp, err := c.api.Do(ctx, http.MethodPost, "/shipments", req, func(resp *remote.Response) error {
		if resp.StatusCode != http.StatusCreated {
			return remote.UnexpectedStatus(ServiceName, "creating shipment", resp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var shipment models.Shipment
	if len(resp.Body) > 0 && strings.HasPrefix(resp.ContentType, "application/json") {
		if err := resp.Decode(ServiceName, &shipment); err != nil {
			return nil, err
		}
	}

	c.logger.WithFields(logrus.Fields{
		"order_id":    req.OrderID,
		"shipment_id": shipment.ID,
	}).Info("Shipment created in logistics service")
	return &shipment, nil
}

func (c *Client) GetShipment(ctx context.Context, shipmentID string) (*models.Shipment, error) {
	if shipmentID == "" {
		return nil, apperrors.Validation("shipment id cannot be empty")
	}

	path := "/shipments/" + url.PathEscape(shipmentID)
	resp, err := c.api.Do(ctx, http.MethodGet, path, nil, func(resp *remote.Response) error {
		switch resp.StatusCode {
		case http.StatusOK:
			return nil
		case http.StatusNotFound:
			return apperrors.NotFound("Shipment %s not found", shipmentID)
		default:
			return remote.UnexpectedStatus(ServiceName, "fetching shipment", resp)
		}
	})
	if err != nil {
		return nil, err
	}

	var shipment models.Shipment
	if err := resp.Decode(ServiceName, &shipment); err != nil {
		return nil, err
	}
	if shipment.Status == "" {
		return nil, apperrors.Remote("%s returned shipment %s without a status", ServiceName, shipmentID)
	}
	if shipment.ID == "" {
		shipment.ID = shipmentID
	}
	return &shipment, nil
}

func (c *Client) UpdateShipment(ctx context.Context, shipmentID string, status models.ShipmentStatus) error {
	if shipmentID == "" {
		return apperrors.Validation("shipment id cannot be empty")
	}

	path := "/shipments/" + url.PathEscape(shipmentID) + "/status"
	payload := map[string]models.ShipmentStatus{"status": status}

	_, err := c.api.Do(ctx, http.MethodPatch, path, payload, func(resp *remote.Response) error {
		switch resp.StatusCode {
		case http.StatusOK, http.StatusNoContent:
			return nil
		case http.StatusNotFound:
			return apperrors.NotFound("Shipment %s not found", shipmentID)
		default:
			return remote.UnexpectedStatus(ServiceName, "updating shipment", resp)
		}
	})
	if err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"shipment_id": shipmentID,
		"status":      status,
	}).Info("Shipment status updated in logistics service")
	return nil
}

// CheckAvailability asks whether the destination can be shipped to. A 400
// means logistics rejected the address itself.
func (c *Client) CheckAvailability(ctx context.Context, dest models.Destination) (*models.Availability, error) {
	resp, err := c.api.Do(ctx, http.MethodPost, "/shipping/availability", dest, func(resp *remote.Response) error {
		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
			return nil
		case resp.StatusCode == http.StatusBadRequest:
			return apperrors.Validation("logistics rejected destination: %s", strings.TrimSpace(string(resp.Body)))
		default:
			return remote.UnexpectedStatus(ServiceName, "checking availability", resp)
		}
	})
	if err != nil {
		return nil, err
	}

	var availability models.Availability
	if len(resp.Body) > 0 && strings.HasPrefix(resp.ContentType, "application/json") {
		if err := resp.Decode(ServiceName, &availability); err != nil {
			return nil, err
		}
	}
	return &availability, nil
}

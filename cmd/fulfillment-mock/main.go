// Command fulfillment-mock stands in for the product and logistics services
// during local runs. Shipment status changes made through its API are
// published to Kafka so the order service's shipment listener sees them.
package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jogardn/order-orchestrator/internal/events"
	"github.com/jogardn/order-orchestrator/internal/httpapi"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/sirupsen/logrus"
)

type shipmentPublisher interface {
	PublishShipmentStatus(event events.ShipmentStatusEvent) error
}

type mockServer struct {
	store     *FulfillmentStore
	publisher shipmentPublisher
	logger    *logrus.Logger
	// latency is the upper bound of the random delay added to each
	// request. Zero disables it.
	latency time.Duration
	blocked map[string]bool
	now     func() time.Time
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	store := NewFulfillmentStore()
	store.seedCatalogue()

	server := &mockServer{
		store:   store,
		logger:  logger,
		blocked: make(map[string]bool),
		now:     time.Now,
	}
	if raw := getEnv("MOCK_LATENCY", ""); raw != "" {
		latency, err := time.ParseDuration(raw)
		if err != nil {
			logger.WithError(err).Fatal("Invalid MOCK_LATENCY")
		}
		server.latency = latency
	}
	for _, country := range strings.Split(getEnv("BLOCKED_COUNTRIES", ""), ",") {
		if country = strings.TrimSpace(country); country != "" {
			server.blocked[strings.ToUpper(country)] = true
		}
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		var producer *events.KafkaProducer
		var err error
		for i := 0; i < 10; i++ {
			producer, err = events.NewKafkaProducer(strings.Split(brokers, ","), logger)
			if err == nil {
				break
			}
			logger.WithError(err).WithField("attempt", i+1).Warn("Failed to connect to Kafka, retrying...")
			time.Sleep(5 * time.Second)
		}
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer after retries")
		}
		defer producer.Close()
		server.publisher = producer
	}

	router := mux.NewRouter()
	server.registerRoutes(router)
	router.Use(httpapi.LoggingMiddleware(logger))

	port := getEnv("FULFILLMENT_PORT", "8082")
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", port).Info("Starting fulfillment mock server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down fulfillment mock server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server forced to shutdown")
	}
	logger.Info("Fulfillment mock server gracefully stopped")
}

func (s *mockServer) registerRoutes(router *mux.Router) {
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		httpapi.RespondWithJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "fulfillment-mock",
		})
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.simulateLatency)

	for resource, variant := range map[string]bool{"products": false, "product-variants": true} {
		api.HandleFunc("/"+resource, s.putProduct(variant)).Methods(http.MethodPost)
		api.HandleFunc("/"+resource+"/{id}", s.getProduct(variant)).Methods(http.MethodGet)
		api.HandleFunc("/"+resource+"/{id}/{op:reserve|release|reduce}", s.modifyStock(variant)).Methods(http.MethodPatch)
	}

	api.HandleFunc("/shipments", s.createShipment).Methods(http.MethodPost)
	api.HandleFunc("/shipments", s.listShipments).Methods(http.MethodGet)
	api.HandleFunc("/shipments/{id}", s.getShipment).Methods(http.MethodGet)
	api.HandleFunc("/shipments/{id}/status", s.updateShipmentStatus).Methods(http.MethodPatch)
	api.HandleFunc("/shipping/availability", s.checkAvailability).Methods(http.MethodPost)
}

func (s *mockServer) simulateLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.latency > 0 {
			time.Sleep(time.Duration(rand.Int63n(int64(s.latency))))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *mockServer) getProduct(variant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		product, ok := s.store.Get(variant, mux.Vars(r)["id"])
		if !ok {
			httpapi.RespondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
		httpapi.RespondWithJSON(w, http.StatusOK, product)
	}
}

func (s *mockServer) putProduct(variant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var product models.Product
		if err := httpapi.DecodeJSON(r, &product); err != nil {
			httpapi.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if product.ID == "" || product.Stock < 0 || product.Price.IsNegative() {
			httpapi.RespondWithError(w, http.StatusBadRequest, "id, non-negative price and stock are required")
			return
		}
		s.store.Put(variant, product)
		httpapi.RespondWithJSON(w, http.StatusCreated, product)
	}
}

func (s *mockServer) modifyStock(variant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		var req struct {
			Quantity int `json:"quantity"`
		}
		if err := httpapi.DecodeJSON(r, &req); err != nil || req.Quantity <= 0 {
			httpapi.RespondWithError(w, http.StatusBadRequest, "quantity must be a positive integer")
			return
		}

		found, err := s.store.ModifyStock(variant, vars["id"], vars["op"], req.Quantity)
		switch {
		case !found:
			httpapi.RespondWithError(w, http.StatusNotFound, "Product not found")
			return
		case errors.Is(err, errInsufficientStock):
			httpapi.RespondWithError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			httpapi.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.logger.WithFields(logrus.Fields{
			"id":        vars["id"],
			"variant":   variant,
			"operation": vars["op"],
			"quantity":  req.Quantity,
		}).Info("Stock modified")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *mockServer) createShipment(w http.ResponseWriter, r *http.Request) {
	var req models.ShipmentRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OrderID == "" {
		httpapi.RespondWithError(w, http.StatusBadRequest, "orderId is required")
		return
	}

	shipment := s.store.CreateShipment(req)
	s.logger.WithFields(logrus.Fields{
		"shipment_id": shipment.ID,
		"order_id":    shipment.OrderID,
	}).Info("Shipment created")
	httpapi.RespondWithJSON(w, http.StatusCreated, shipment)
}

func (s *mockServer) listShipments(w http.ResponseWriter, r *http.Request) {
	shipments := s.store.ListShipments()
	httpapi.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"shipments": shipments,
		"count":     len(shipments),
	})
}

func (s *mockServer) getShipment(w http.ResponseWriter, r *http.Request) {
	shipment, ok := s.store.GetShipment(mux.Vars(r)["id"])
	if !ok {
		httpapi.RespondWithError(w, http.StatusNotFound, "Shipment not found")
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, shipment)
}

// updateShipmentStatus is how a local run drives an order forward: moving
// a shipment to InTransit or Delivered publishes the event the order
// service listens for.
func (s *mockServer) updateShipmentStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.ShipmentStatus `json:"status"`
	}
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch req.Status {
	case models.ShipmentStatusPending, models.ShipmentStatusInTransit,
		models.ShipmentStatusDelivered, models.ShipmentStatusCancelled:
	default:
		httpapi.RespondWithError(w, http.StatusBadRequest, "unknown shipment status")
		return
	}

	now := s.now()
	shipment, ok := s.store.SetShipmentStatus(mux.Vars(r)["id"], req.Status, now)
	if !ok {
		httpapi.RespondWithError(w, http.StatusNotFound, "Shipment not found")
		return
	}

	if s.publisher != nil {
		event := events.ShipmentStatusEvent{
			ShipmentID: shipment.ID,
			OrderID:    shipment.OrderID,
			Status:     shipment.Status,
			OccurredAt: now.UTC(),
		}
		if err := s.publisher.PublishShipmentStatus(event); err != nil {
			s.logger.WithError(err).WithField("shipment_id", shipment.ID).Error("Failed to publish shipment status event")
		}
	}

	httpapi.RespondWithJSON(w, http.StatusOK, shipment)
}

func (s *mockServer) checkAvailability(w http.ResponseWriter, r *http.Request) {
	var dest models.Destination
	if err := httpapi.DecodeJSON(r, &dest); err != nil {
		httpapi.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if dest.Country == "" || dest.PostalCode == "" {
		httpapi.RespondWithError(w, http.StatusBadRequest, "country and postalCode are required")
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, models.Availability{
		Valid: !s.blocked[strings.ToUpper(dest.Country)],
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

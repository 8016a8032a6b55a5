package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jogardn/order-orchestrator/internal/circuitbreaker"
	"github.com/jogardn/order-orchestrator/internal/events"
	"github.com/jogardn/order-orchestrator/internal/httpapi"
	"github.com/jogardn/order-orchestrator/internal/websocket"
	"github.com/sirupsen/logrus"
)

type clientCounter interface {
	ClientCount() int
}

type broadcaster interface {
	Broadcast(messageType string, data interface{}, source string)
}

type breakerStateChange struct {
	Name string `json:"name"`
	From string `json:"from"`
	To   string `json:"to"`
}

// breakerNotifier pushes breaker state changes to dashboard clients.
func breakerNotifier(hub broadcaster) func(name string, from, to circuitbreaker.State) {
	return func(name string, from, to circuitbreaker.State) {
		hub.Broadcast(websocket.MessageBreakerStateChanged, breakerStateChange{
			Name: name,
			From: from.String(),
			To:   to.String(),
		}, "order-service")
	}
}

func healthCheck(store pinger, consumer *events.ShipmentConsumer, breakers *circuitbreaker.Manager, hub clientCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		body := map[string]interface{}{
			"status":            "healthy",
			"service":           "order-service",
			"breakers":          breakers.Snapshots(),
			"websocket_clients": hub.ClientCount(),
		}
		if consumer != nil {
			body["shipment_consumer"] = consumer.Metrics()
		}

		if err := store.Ping(ctx); err != nil {
			body["status"] = "unhealthy"
			body["error"] = "database connection failed"
			httpapi.RespondWithJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		httpapi.RespondWithJSON(w, http.StatusOK, body)
	}
}

// resetBreakers closes every breaker so traffic resumes at once after an
// operator has confirmed a remote service is back.
func resetBreakers(breakers *circuitbreaker.Manager, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		breakers.ResetAll()
		logger.WithField("remote_addr", r.RemoteAddr).Warn("Circuit breakers reset by operator")
		httpapi.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"breakers": breakers.Snapshots(),
		})
	}
}

package orders

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jogardn/order-orchestrator/internal/httpapi"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	service *Service
	logger  *logrus.Logger
}

func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orders", h.CreateOrder).Methods(http.MethodPost)
	router.HandleFunc("/orders", h.ListOrders).Methods(http.MethodGet)
	router.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	router.HandleFunc("/orders/{id}", h.DeleteOrder).Methods(http.MethodDelete)
	router.HandleFunc("/orders/{id}/status", h.PatchOrderStatus).Methods(http.MethodPatch)
	router.HandleFunc("/orders/{id}/items", h.UpdateOrderItems).Methods(http.MethodPut)
	router.HandleFunc("/orders/{id}/transitions", h.GetTransitions).Methods(http.MethodGet)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "create order")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "create order")
		return
	}

	httpapi.RespondWithJSON(w, http.StatusCreated, models.OrderResponse{
		Success: true,
		Message: "Order created successfully",
		Order:   order,
	})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "get orders")
		return
	}

	httpapi.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"orders":  orders,
		"count":   len(orders),
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "get order")
		return
	}
	if order == nil {
		httpapi.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	httpapi.RespondWithJSON(w, http.StatusOK, order)
}

// PatchOrderStatus answers with the order as stored after the transition.
func (h *Handler) PatchOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.PatchOrderRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "update order status")
		return
	}

	updated, err := h.service.PatchOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "update order status")
		return
	}
	if !updated {
		httpapi.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "get order")
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success: true,
		Message: "Order status updated",
		Order:   order,
	})
}

func (h *Handler) UpdateOrderItems(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.UpdateOrderItemsRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "update order items")
		return
	}

	order, err := h.service.UpdateOrderItems(r.Context(), id, req)
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "update order items")
		return
	}
	if order == nil {
		httpapi.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}

	httpapi.RespondWithJSON(w, http.StatusOK, models.OrderResponse{
		Success: true,
		Message: "Order items updated",
		Order:   order,
	})
}

func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	deleted, err := h.service.DeleteOrder(r.Context(), id)
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "delete order")
		return
	}
	if !deleted {
		httpapi.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetTransitions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	history, err := h.service.History(r.Context(), id)
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "get order transitions")
		return
	}
	if history == nil {
		history = []models.TransitionRecord{}
	}

	httpapi.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"order_id":    id,
		"transitions": history,
	})
}

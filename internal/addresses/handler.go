package addresses

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
	router.HandleFunc("/addresses", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/addresses", h.List).Methods(http.MethodGet)
	router.HandleFunc("/addresses/{id}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/addresses/{id}", h.Update).Methods(http.MethodPut)
	router.HandleFunc("/addresses/{id}", h.Delete).Methods(http.MethodDelete)
	router.HandleFunc("/customers/{id}/address", h.GetByCustomer).Methods(http.MethodGet)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAddressRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "create address")
		return
	}

	address, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "create address")
		return
	}
	httpapi.RespondWithJSON(w, http.StatusCreated, address)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.service.List(r.Context())
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "get addresses")
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"addresses": addresses,
		"count":     len(addresses),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	address, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	h.respondWithAddress(w, address, err, "get address")
}

func (h *Handler) GetByCustomer(w http.ResponseWriter, r *http.Request) {
	address, err := h.service.GetByCustomerID(r.Context(), mux.Vars(r)["id"])
	h.respondWithAddress(w, address, err, "get customer address")
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateAddressRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "update address")
		return
	}

	address, err := h.service.Update(r.Context(), mux.Vars(r)["id"], req)
	h.respondWithAddress(w, address, err, "update address")
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, "delete address")
		return
	}
	if !deleted {
		httpapi.RespondWithError(w, http.StatusNotFound, "Address not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondWithAddress(w http.ResponseWriter, address *models.Address, err error, action string) {
	if err != nil {
		httpapi.RespondWithAppError(w, h.logger, err, action)
		return
	}
	if address == nil {
		httpapi.RespondWithError(w, http.StatusNotFound, "Address not found")
		return
	}
	httpapi.RespondWithJSON(w, http.StatusOK, address)
}

package orders

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/pkg/models"
	"github.com/sirupsen/logrus"
)

func newTestRouter(f *fixture) *mux.Router {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	router := mux.NewRouter()
	NewHandler(f.svc, logger).RegisterRoutes(router.PathPrefix("/api").Subrouter())
	return router
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndGet(t *testing.T) {
	f := newFixture(t)
	f.products.setPrice("product:P1", "19.99")
	router := newTestRouter(f)

	rec := doRequest(router, http.MethodPost, "/api/orders", `{"customer_id":"C","items":[{"product_id":"P1","quantity":2}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created models.OrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !created.Success || created.Order == nil || created.Order.TotalAmount.String() != "39.98" {
		t.Fatalf("Unexpected response %s", rec.Body.String())
	}

	rec = doRequest(router, http.MethodGet, "/api/orders/"+created.Order.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var raw map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &raw)
	if raw["status"] != "Pending" || raw["customer_id"] != "C" {
		t.Errorf("Unexpected order body %v", raw)
	}
	if _, ok := raw["shipment_id"]; ok {
		t.Error("Expected shipment_id to be omitted before shipping")
	}

	rec = doRequest(router, http.MethodGet, "/api/orders", "")
	var list struct {
		Count  int                `json:"count"`
		Orders []models.OrderRead `json:"orders"`
	}
	json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Count != 1 || len(list.Orders) != 1 {
		t.Errorf("Unexpected list %s", rec.Body.String())
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(*testing.T, *fixture) string
		method string
		path   func(id string) string
		body   string
		want   int
	}{
		{
			name:   "unknown_field",
			setup:  func(t *testing.T, f *fixture) string { return "" },
			method: http.MethodPost,
			path:   func(string) string { return "/api/orders" },
			body:   `{"customer_id":"C","items":[{"product_id":"P1","quantity":1}],"total_amount":1}`,
			want:   http.StatusBadRequest,
		},
		{
			name:   "product_not_found",
			setup:  func(t *testing.T, f *fixture) string { return "" },
			method: http.MethodPost,
			path:   func(string) string { return "/api/orders" },
			body:   `{"customer_id":"C","items":[{"product_id":"missing","quantity":1}]}`,
			want:   http.StatusNotFound,
		},
		{
			name: "product_service_down",
			setup: func(t *testing.T, f *fixture) string {
				f.products.fail["get:product:P1"] = apperrors.Remote("product-service unavailable")
				return ""
			},
			method: http.MethodPost,
			path:   func(string) string { return "/api/orders" },
			body:   `{"customer_id":"C","items":[{"product_id":"P1","quantity":1}]}`,
			want:   http.StatusBadGateway,
		},
		{
			name: "invalid_transition",
			setup: func(t *testing.T, f *fixture) string {
				return f.seed(t, models.OrderStatusCompleted, "S1", productItem("P1", 1, "1.00")).ID
			},
			method: http.MethodPatch,
			path:   func(id string) string { return "/api/orders/" + id + "/status" },
			body:   `{"status":"Cancelled"}`,
			want:   http.StatusBadRequest,
		},
		{
			name:   "patch_missing_order",
			setup:  func(t *testing.T, f *fixture) string { return "nope" },
			method: http.MethodPatch,
			path:   func(id string) string { return "/api/orders/" + id + "/status" },
			body:   `{"status":"Cancelled"}`,
			want:   http.StatusNotFound,
		},
		{
			name:   "get_missing_order",
			setup:  func(t *testing.T, f *fixture) string { return "nope" },
			method: http.MethodGet,
			path:   func(id string) string { return "/api/orders/" + id },
			want:   http.StatusNotFound,
		},
		{
			name:   "history_missing_order",
			setup:  func(t *testing.T, f *fixture) string { return "nope" },
			method: http.MethodGet,
			path:   func(id string) string { return "/api/orders/" + id + "/transitions" },
			want:   http.StatusNotFound,
		},
		{
			name: "items_of_processing_order",
			setup: func(t *testing.T, f *fixture) string {
				return f.seed(t, models.OrderStatusProcessing, "S1", productItem("P1", 1, "1.00")).ID
			},
			method: http.MethodPut,
			path:   func(id string) string { return "/api/orders/" + id + "/items" },
			body:   `{"items":[{"product_id":"P1","quantity":1}]}`,
			want:   http.StatusBadRequest,
		},
		{
			name: "items_of_missing_order",
			setup: func(t *testing.T, f *fixture) string {
				f.products.setPrice("product:P1", "1.00")
				return "nope"
			},
			method: http.MethodPut,
			path:   func(id string) string { return "/api/orders/" + id + "/items" },
			body:   `{"items":[{"product_id":"P1","quantity":1}]}`,
			want:   http.StatusNotFound,
		},
		{
			name:   "delete_missing_order",
			setup:  func(t *testing.T, f *fixture) string { return "nope" },
			method: http.MethodDelete,
			path:   func(id string) string { return "/api/orders/" + id },
			want:   http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := tt.setup(t, f)
			rec := doRequest(newTestRouter(f), tt.method, tt.path(id), tt.body)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if rec.Code >= 400 {
				var body map[string]interface{}
				json.Unmarshal(rec.Body.Bytes(), &body)
				if body["success"] != false {
					t.Errorf("Expected success=false, got %v", body)
				}
			}
		})
	}
}

func TestHandlerUpdateOrderItems(t *testing.T) {
	f := newFixture(t)
	f.products.setPrice("product:P2", "3.00")
	order := f.seed(t, models.OrderStatusPending, "", productItem("P1", 1, "1.00"))

	rec := doRequest(newTestRouter(f), http.MethodPut, "/api/orders/"+order.ID+"/items", `{"items":[{"product_id":"P2","quantity":2}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.OrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if !resp.Success || resp.Order == nil || resp.Order.TotalAmount.String() != "6" || len(resp.Order.Items) != 1 {
		t.Errorf("Unexpected response %s", rec.Body.String())
	}
}

func TestHandlerPatchReturnsUpdatedOrder(t *testing.T) {
	f := newFixture(t)
	f.addAddress(t, "C")
	order := f.seed(t, models.OrderStatusPending, "", productItem("P1", 1, "1.00"))
	router := newTestRouter(f)

	rec := doRequest(router, http.MethodPatch, "/api/orders/"+order.ID+"/status", `{"status":"Processing"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.OrderResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Order == nil || resp.Order.Status != models.OrderStatusProcessing || resp.Order.ShipmentID != "S1" {
		t.Errorf("Unexpected response %s", rec.Body.String())
	}

	rec = doRequest(router, http.MethodGet, "/api/orders/"+order.ID+"/transitions", "")
	var history struct {
		Transitions []models.TransitionRecord `json:"transitions"`
	}
	json.Unmarshal(rec.Body.Bytes(), &history)
	if len(history.Transitions) != 1 || history.Transitions[0].State != models.TransitionApplied {
		t.Errorf("Unexpected transitions %s", rec.Body.String())
	}

	rec = doRequest(router, http.MethodDelete, "/api/orders/"+order.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
}

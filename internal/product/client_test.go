package product

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/internal/circuitbreaker"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type recordedRequest struct {
	Method   string
	Path     string
	Quantity int
}

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) add(req recordedRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recorder, *circuitbreaker.Manager) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	requests := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path}
		if r.Body != nil {
			var body struct {
				Quantity int `json:"quantity"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			rec.Quantity = body.Quantity
		}
		requests.add(rec)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	breakers := circuitbreaker.NewManager(circuitbreaker.Config{MaxFailures: 2, OpenTimeout: time.Minute}, logger)
	return NewClient(srv.URL+"/api/", time.Second, breakers, logger), requests, breakers
}

func TestGetProduct(t *testing.T) {
	client, requests, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"p1","name":"Mug","price":"19.99"}`))
	})

	p, err := client.GetProduct(context.Background(), "p1")
	if err != nil {
		t.Fatalf("GetProduct() error: %v", err)
	}
	if !p.Price.Equal(decimal.RequireFromString("19.99")) {
		t.Errorf("Expected price 19.99, got %s", p.Price)
	}
	if requests.all()[0].Path != "/api/products/p1" {
		t.Errorf("Unexpected path %s", requests.all()[0].Path)
	}
}

func TestGetVariantNumericPrice(t *testing.T) {
	client, requests, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": 5.5}`))
	})

	v, err := client.GetVariant(context.Background(), "v9")
	if err != nil {
		t.Fatalf("GetVariant() error: %v", err)
	}
	if v.ID != "v9" {
		t.Errorf("Expected id to default to v9, got %s", v.ID)
	}
	if !v.Price.Equal(decimal.RequireFromString("5.5")) {
		t.Errorf("Expected price 5.5, got %s", v.Price)
	}
	if requests.all()[0].Path != "/api/product-variants/v9" {
		t.Errorf("Unexpected path %s", requests.all()[0].Path)
	}
}

func TestGetProductErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not_found", http.StatusNotFound, `{"detail":"missing"}`, apperrors.ErrNotFound},
		{"server_error", http.StatusInternalServerError, "boom", apperrors.ErrRemoteService},
		{"bad_json", http.StatusOK, "not json", apperrors.ErrRemoteService},
		{"null_body", http.StatusOK, "null", apperrors.ErrRemoteService},
		{"missing_price", http.StatusOK, `{"id":"p1","name":"Mug"}`, apperrors.ErrRemoteService},
		{"null_price", http.StatusOK, `{"id":"p1","price":null}`, apperrors.ErrRemoteService},
		{"negative_price", http.StatusOK, `{"id":"p1","price":"-1.00"}`, apperrors.ErrRemoteService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.GetProduct(context.Background(), "p1")
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestStockOperations(t *testing.T) {
	client, requests, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	calls := []struct {
		fn   func(context.Context, string, int) error
		id   string
		qty  int
		path string
	}{
		{client.ReserveProductStock, "p1", 2, "/api/products/p1/reserve"},
		{client.ReleaseProductStock, "p1", 2, "/api/products/p1/release"},
		{client.ReduceProductStock, "p1", 2, "/api/products/p1/reduce"},
		{client.ReserveVariantStock, "v1", 3, "/api/product-variants/v1/reserve"},
		{client.ReleaseVariantStock, "v1", 3, "/api/product-variants/v1/release"},
		{client.ReduceVariantStock, "v1", 3, "/api/product-variants/v1/reduce"},
	}

	for _, c := range calls {
		if err := c.fn(ctx, c.id, c.qty); err != nil {
			t.Fatalf("%s: unexpected error %v", c.path, err)
		}
	}

	if len(requests.all()) != len(calls) {
		t.Fatalf("Expected %d requests, got %d", len(calls), len(requests.all()))
	}
	for i, c := range calls {
		got := requests.all()[i]
		if got.Method != http.MethodPatch || got.Path != c.path || got.Quantity != c.qty {
			t.Errorf("Request %d = %+v, want PATCH %s qty %d", i, got, c.path, c.qty)
		}
	}
}

func TestStockOperationRejectsBadInput(t *testing.T) {
	client, requests, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	if err := client.ReserveProductStock(context.Background(), "", 1); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected validation error for empty id, got %v", err)
	}
	if err := client.ReserveProductStock(context.Background(), "p1", 0); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected validation error for zero quantity, got %v", err)
	}
	if len(requests.all()) != 0 {
		t.Errorf("Expected no requests, got %d", len(requests.all()))
	}
}

func TestStockOperationNon2xx(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("insufficient stock"))
	})

	err := client.ReserveProductStock(context.Background(), "p1", 100)
	if !errors.Is(err, apperrors.ErrRemoteService) {
		t.Fatalf("Expected remote service error, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient stock") {
		t.Errorf("Expected body in error message, got %q", err.Error())
	}
}

func TestBreakerOpensOnRemoteFailuresOnly(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	client, requests, breakers := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		client.GetProduct(ctx, "p1")
	}
	if breakers.Get(ServiceName).State() != circuitbreaker.StateClosed {
		t.Fatal("Expected 404s to leave the breaker closed")
	}

	status.Store(http.StatusBadGateway)
	client.GetProduct(ctx, "p1")
	client.GetProduct(ctx, "p1")
	sent := len(requests.all())

	_, err := client.GetProduct(ctx, "p1")
	if !errors.Is(err, apperrors.ErrRemoteService) || !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("Expected open-breaker remote error, got %v", err)
	}
	if len(requests.all()) != sent {
		t.Error("Expected no request while the breaker is open")
	}
}

func TestTimeoutIsRemoteError(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(srv.URL, 50*time.Millisecond, nil, logger)
	err := client.ReduceProductStock(context.Background(), "p1", 1)
	if !errors.Is(err, apperrors.ErrRemoteService) {
		t.Errorf("Expected remote service error on timeout, got %v", err)
	}
}

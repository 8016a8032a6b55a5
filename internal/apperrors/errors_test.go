package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not_found", NotFound("product %s not found", "p1"), http.StatusNotFound},
		{"remote", Remote("logistics returned %d", 500), http.StatusBadGateway},
		{"validation", Validation("customer id is required"), http.StatusBadRequest},
		{"transition", InvalidTransition("Completed to Cancelled"), http.StatusBadRequest},
		{"state", InvalidState("no shipment"), http.StatusBadRequest},
		{"conflict", Conflict("stale order"), http.StatusConflict},
		{"wrapped", fmt.Errorf("patch failed: %w", NotFound("order")), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRemoteCauseKeepsBothChains(t *testing.T) {
	err := RemoteCause(context.DeadlineExceeded, "get shipment %s", "s1")

	if !errors.Is(err, ErrRemoteService) {
		t.Error("Expected error to be a remote service error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("Expected error to keep the deadline cause")
	}
	if err.Error() != "get shipment s1: context deadline exceeded" {
		t.Errorf("Unexpected message: %q", err.Error())
	}
}

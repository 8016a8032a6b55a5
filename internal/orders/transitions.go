package orders

import (
	"strings"

	"github.com/jogardn/order-orchestrator/pkg/models"
)

var allowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusInTransit, models.OrderStatusCancelled},
	models.OrderStatusInTransit:  {models.OrderStatusCompleted, models.OrderStatusCancelled},
}

// CanTransition reports whether an order in status from may move to to.
// Completed and Cancelled are terminal.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from status in one step.
func NextStatuses(status models.OrderStatus) []models.OrderStatus {
	return append([]models.OrderStatus(nil), allowedTransitions[status]...)
}

func describeNext(status models.OrderStatus) string {
	next := NextStatuses(status)
	if len(next) == 0 {
		return "none"
	}
	names := make([]string, len(next))
	for i, st := range next {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}

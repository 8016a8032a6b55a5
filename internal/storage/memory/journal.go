package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/pkg/models"
)

type TransitionJournal struct {
	mu      sync.Mutex
	records map[string]models.TransitionRecord
}

func NewTransitionJournal() *TransitionJournal {
	return &TransitionJournal{records: make(map[string]models.TransitionRecord)}
}

func (j *TransitionJournal) Begin(ctx context.Context, record models.TransitionRecord) error {
	if record.ID == "" {
		return apperrors.Validation("transition identifier cannot be empty")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	record.State = models.TransitionStarted
	j.records[record.ID] = record
	return nil
}

func (j *TransitionJournal) Finish(ctx context.Context, id string, state models.TransitionState, cause string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	record, ok := j.records[id]
	if !ok {
		return apperrors.NotFound("transition %s not found", id)
	}
	now := time.Now().UTC()
	record.State = state
	record.Error = cause
	record.FinishedAt = &now
	j.records[id] = record
	return nil
}

// Pending lists transitions that never finished, oldest first.
func (j *TransitionJournal) Pending(ctx context.Context) ([]models.TransitionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []models.TransitionRecord
	for _, record := range j.records {
		if record.State == models.TransitionStarted {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.Before(out[b].StartedAt) })
	return out, nil
}

// ForOrder returns every journal entry for one order, oldest first.
func (j *TransitionJournal) ForOrder(ctx context.Context, orderID string) ([]models.TransitionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []models.TransitionRecord
	for _, record := range j.records {
		if record.OrderID == orderID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.Before(out[b].StartedAt) })
	return out, nil
}

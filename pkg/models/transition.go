package models

import "time"

type TransitionState string

const (
	TransitionStarted TransitionState = "STARTED"
	TransitionApplied TransitionState = "APPLIED"
	TransitionFailed  TransitionState = "FAILED"
)

// TransitionRecord is one journal row for a status change attempt. A record
// left in STARTED means remote side effects may have run without the order
// being saved.
type TransitionRecord struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	FromStatus OrderStatus     `json:"from_status"`
	ToStatus   OrderStatus     `json:"to_status"`
	State      TransitionState `json:"state"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

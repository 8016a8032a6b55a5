package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jogardn/order-orchestrator/internal/apperrors"
	"github.com/jogardn/order-orchestrator/pkg/models"
)

type TransitionJournal struct {
	db *sql.DB
}

func NewTransitionJournal(db *sql.DB) *TransitionJournal {
	return &TransitionJournal{db: db}
}

func (j *TransitionJournal) Begin(ctx context.Context, record models.TransitionRecord) error {
	if record.ID == "" {
		return apperrors.Validation("transition identifier cannot be empty")
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO order_transitions (id, order_id, from_status, to_status, state, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.OrderID, record.FromStatus, record.ToStatus,
		models.TransitionStarted, record.StartedAt)
	return err
}

func (j *TransitionJournal) Finish(ctx context.Context, id string, state models.TransitionState, cause string) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE order_transitions SET state = $1, error = $2, finished_at = $3 WHERE id = $4`,
		state, nullString(cause), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.NotFound("transition %s not found", id)
	}
	return nil
}

// Pending lists transitions that never finished, oldest first.
func (j *TransitionJournal) Pending(ctx context.Context) ([]models.TransitionRecord, error) {
	return j.query(ctx, `WHERE state = $1 ORDER BY started_at`, models.TransitionStarted)
}

// ForOrder returns every journal entry for one order, oldest first.
func (j *TransitionJournal) ForOrder(ctx context.Context, orderID string) ([]models.TransitionRecord, error) {
	return j.query(ctx, `WHERE order_id = $1 ORDER BY started_at`, orderID)
}

func (j *TransitionJournal) query(ctx context.Context, where string, arg interface{}) ([]models.TransitionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, state, error, started_at, finished_at
		FROM order_transitions `+where, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TransitionRecord
	for rows.Next() {
		var (
			rec      models.TransitionRecord
			cause    sql.NullString
			finished sql.NullTime
		)
		err := rows.Scan(&rec.ID, &rec.OrderID, &rec.FromStatus, &rec.ToStatus,
			&rec.State, &cause, &rec.StartedAt, &finished)
		if err != nil {
			return nil, err
		}
		rec.Error = cause.String
		rec.StartedAt = rec.StartedAt.UTC()
		rec.FinishedAt = timePtr(finished)
		records = append(records, rec)
	}
	return records, rows.Err()
}

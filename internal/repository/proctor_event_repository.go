package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// ProctorEventRepository reads the proctoring audit trail. Writes go through
// the violation worker's bulk path, not here.
type ProctorEventRepository struct {
	pool *pgxpool.Pool
}

// NewProctorEventRepository creates a new ProctorEventRepository.
func NewProctorEventRepository(pool *pgxpool.Pool) *ProctorEventRepository {
	return &ProctorEventRepository{pool: pool}
}

// ListByAttempt retrieves one attempt's proctor events in occurrence order.
func (r *ProctorEventRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.ProctorEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, student_id, kind, detail, occurred_at, created_at
		 FROM proctor_events
		 WHERE attempt_id = $1
		 ORDER BY occurred_at ASC, id ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ProctorEvent
	for rows.Next() {
		var e model.ProctorEvent
		if err := rows.Scan(&e.ID, &e.AttemptID, &e.StudentID, &e.Kind, &e.Detail,
			&e.OccurredAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountViolations returns how many non-return events one attempt accumulated.
func (r *ProctorEventRepository) CountViolations(ctx context.Context, attemptID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM proctor_events
		 WHERE attempt_id = $1 AND kind <> 'return'`, attemptID,
	).Scan(&count)
	return count, err
}

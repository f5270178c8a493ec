package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// AnswerRepository handles answer data access.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert creates or overwrites the answer keyed by (attempt, item).
// Later saves overwrite, never duplicate; marks and correctness are left
// untouched here — they are written only by the finalize transaction.
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.Answer) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO answers (attempt_id, item_id, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (attempt_id, item_id) DO UPDATE
		 SET value = EXCLUDED.value, updated_at = NOW()
		 RETURNING id, updated_at`,
		a.AttemptID, a.ItemID, a.Value,
	).Scan(&a.ID, &a.UpdatedAt)
}

// ListByAttempt retrieves all answers saved during one attempt.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, item_id, value, result_ledger, correct, marks_awarded, updated_at, graded_at
		 FROM answers WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.ItemID, &a.Value, &a.ResultLedger,
			&a.Correct, &a.MarksAwarded, &a.UpdatedAt, &a.GradedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

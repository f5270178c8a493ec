package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// ItemRepository handles item (question) data access.
type ItemRepository struct {
	pool *pgxpool.Pool
}

// NewItemRepository creates a new ItemRepository.
func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{pool: pool}
}

// GetByID retrieves one item.
func (r *ItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	it := &model.Item{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, assessment_id, kind, prompt, options, test_cases, answer_key, language, marks, position
		 FROM items WHERE id = $1`, id,
	).Scan(&it.ID, &it.AssessmentID, &it.Kind, &it.Prompt, &it.Options,
		&it.TestCases, &it.AnswerKey, &it.Language, &it.Marks, &it.Position)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// ListByAssessment retrieves all items of an assessment in position order.
func (r *ItemRepository) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.Item, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, assessment_id, kind, prompt, options, test_cases, answer_key, language, marks, position
		 FROM items WHERE assessment_id = $1
		 ORDER BY position ASC`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.ID, &it.AssessmentID, &it.Kind, &it.Prompt, &it.Options,
			&it.TestCases, &it.AnswerKey, &it.Language, &it.Marks, &it.Position); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SumMarks returns the total marks over an assessment's items.
func (r *ItemRepository) SumMarks(ctx context.Context, assessmentID uuid.UUID) (int, error) {
	var sum int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(marks), 0) FROM items WHERE assessment_id = $1`, assessmentID,
	).Scan(&sum)
	return sum, err
}

// ReplaceForAssessment atomically replaces the whole item set of an
// assessment: delete, then bulk insert via COPY.
func (r *ItemRepository) ReplaceForAssessment(ctx context.Context, assessmentID uuid.UUID, items []model.Item) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM items WHERE assessment_id = $1`, assessmentID); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}

	rows := make([][]interface{}, 0, len(items))
	for _, it := range items {
		rows = append(rows, []interface{}{
			uuid.New(), assessmentID, it.Kind, it.Prompt, it.Options,
			it.TestCases, it.AnswerKey, it.Language, it.Marks, it.Position,
		})
	}

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"items"},
		[]string{"id", "assessment_id", "kind", "prompt", "options", "test_cases", "answer_key", "language", "marks", "position"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy items: %w", err)
	}

	return tx.Commit(ctx)
}

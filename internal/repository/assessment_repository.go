package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// AssessmentRepository handles assessment data access.
type AssessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

const assessmentColumns = `id, join_code, title, kind, owner_id, total_marks,
	scheduled_start, scheduled_end, duration_minutes, status, created_at, updated_at`

func scanAssessment(row interface{ Scan(...any) error }) (*model.Assessment, error) {
	a := &model.Assessment{}
	err := row.Scan(&a.ID, &a.JoinCode, &a.Title, &a.Kind, &a.OwnerID, &a.TotalMarks,
		&a.ScheduledStart, &a.ScheduledEnd, &a.DurationMinutes, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new assessment.
func (r *AssessmentRepository) Create(ctx context.Context, a *model.Assessment) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO assessments
		   (join_code, title, kind, owner_id, total_marks, scheduled_start, scheduled_end, duration_minutes, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		a.JoinCode, a.Title, a.Kind, a.OwnerID, a.TotalMarks,
		a.ScheduledStart, a.ScheduledEnd, a.DurationMinutes, a.Status,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// GetByID retrieves an assessment by id.
func (r *AssessmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	return scanAssessment(r.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id))
}

// GetByJoinCode retrieves an assessment by its join code.
func (r *AssessmentRepository) GetByJoinCode(ctx context.Context, code string) (*model.Assessment, error) {
	return scanAssessment(r.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE join_code = $1`, code))
}

// JoinCodeExists reports whether a join code is already allocated.
func (r *AssessmentRepository) JoinCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM assessments WHERE join_code = $1)`, code,
	).Scan(&exists)
	return exists, err
}

// UpdateStatus transitions an assessment's status. The allowed source states
// are enforced in SQL so concurrent transitions cannot race past the check.
func (r *AssessmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []model.AssessmentStatus, to model.AssessmentStatus) (bool, error) {
	froms := make([]string, len(from))
	for i, s := range from {
		froms[i] = string(s)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE assessments SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = ANY($4)`,
		to, time.Now(), id, froms)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListByOwner retrieves all assessments created by one teacher.
func (r *AssessmentRepository) ListByOwner(ctx context.Context, ownerID int) ([]model.Assessment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+assessmentColumns+`
		 FROM assessments WHERE owner_id = $1
		 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

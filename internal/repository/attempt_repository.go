package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/invigilo/invigilo-backend/internal/model"
)

// AttemptResult combines a student's identity with their attempt outcome,
// for the teacher-facing results listing.
type AttemptResult struct {
	StudentID   int                 `json:"student_id"`
	StudentName string              `json:"student_name"`
	Email       string              `json:"email"`
	Status      model.AttemptStatus `json:"status"`
	Score       *float64            `json:"score"`
	StartedAt   time.Time           `json:"started_at"`
	EndedAt     *time.Time          `json:"ended_at"`
}

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, assessment_id, student_id, status, started_at, ended_at, score`

func scanAttempt(row interface{ Scan(...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.AssessmentID, &a.StudentID, &a.Status, &a.StartedAt, &a.EndedAt, &a.Score)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// GetByAssessmentAndStudent retrieves the attempt for one (assessment, student) pair.
// The pair is unique by constraint, so at most one row exists.
func (r *AttemptRepository) GetByAssessmentAndStudent(ctx context.Context, assessmentID uuid.UUID, studentID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts WHERE assessment_id = $1 AND student_id = $2`,
		assessmentID, studentID))
}

// Create inserts a new IN_PROGRESS attempt. A concurrent join loses the
// insert race and surfaces as pgx.ErrNoRows, which callers resolve by
// refetching the winner's row.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (assessment_id, student_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (assessment_id, student_id) DO NOTHING
		 RETURNING id, started_at`,
		a.AssessmentID, a.StudentID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt)
}

// Finalize persists a finalize pass as one atomic unit: every graded answer's
// marks/correctness/ledger plus the attempt's terminal status and score. A
// crash mid-scoring can therefore never leave a COMPLETED attempt with a
// partial score. Returns pgx.ErrNoRows if the attempt was not IN_PROGRESS
// (already finalized by a concurrent caller).
func (r *AttemptRepository) Finalize(ctx context.Context, attemptID uuid.UUID, status model.AttemptStatus, score float64, graded []model.GradedAnswer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	tag, err := tx.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, ended_at = $3
		 WHERE id = $4 AND status = $5`,
		status, score, now, attemptID, model.AttemptStatusInProgress)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	batch := &pgx.Batch{}
	for _, g := range graded {
		batch.Queue(
			`UPDATE answers
			 SET correct = $1, marks_awarded = $2, result_ledger = $3, graded_at = $4
			 WHERE attempt_id = $5 AND item_id = $6`,
			g.Correct, g.MarksAwarded, g.ResultLedger, now, attemptID, g.ItemID)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("grade answers: %w", err)
	}

	return tx.Commit(ctx)
}

// ListOverdue retrieves IN_PROGRESS attempts whose duration limit or
// assessment end instant has passed. Used by the deadline sweeper.
func (r *AttemptRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT at.id, at.assessment_id, at.student_id, at.status, at.started_at, at.ended_at, at.score
		 FROM attempts at
		 JOIN assessments a ON at.assessment_id = a.id
		 WHERE at.status = $1
		   AND (at.started_at + make_interval(mins => a.duration_minutes) < $2
		        OR (a.scheduled_end IS NOT NULL AND a.scheduled_end < $2))
		 ORDER BY at.started_at ASC
		 LIMIT $3`,
		model.AttemptStatusInProgress, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// CountByAssessment returns how many attempts exist against an assessment.
// A non-zero count locks the assessment against edits.
func (r *AttemptRepository) CountByAssessment(ctx context.Context, assessmentID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE assessment_id = $1`, assessmentID,
	).Scan(&count)
	return count, err
}

// ListByAssessment retrieves paginated student results for one assessment.
func (r *AttemptRepository) ListByAssessment(ctx context.Context, assessmentID uuid.UUID, page, perPage int) ([]AttemptResult, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE assessment_id = $1`, assessmentID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.name, u.email, at.status, at.score, at.started_at, at.ended_at
		 FROM attempts at
		 JOIN users u ON at.student_id = u.id
		 WHERE at.assessment_id = $1
		 ORDER BY u.name ASC
		 LIMIT $2 OFFSET $3`,
		assessmentID, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(&res.StudentID, &res.StudentName, &res.Email,
			&res.Status, &res.Score, &res.StartedAt, &res.EndedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
)

// Assessment authoring errors.
var (
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrNotOwner           = errors.New("not the assessment owner")
	ErrNotDraft           = errors.New("assessment is not in draft status")
	ErrNoItems            = errors.New("assessment has no items")
	ErrMarksMismatch      = errors.New("item marks do not sum to total marks")
	ErrAssessmentLocked   = errors.New("assessment already has attempts")
	ErrInvalidTransition  = errors.New("status transition not permitted")
	ErrJoinCodeExhausted  = errors.New("could not allocate a unique join code")
)

const (
	joinCodeLength   = 6
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O/1/I lookalikes
	joinCodeRetries  = 5
)

// AssessmentRepo is the assessment persistence surface of the service.
type AssessmentRepo interface {
	Create(ctx context.Context, a *model.Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error)
	JoinCodeExists(ctx context.Context, code string) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []model.AssessmentStatus, to model.AssessmentStatus) (bool, error)
	ListByOwner(ctx context.Context, ownerID int) ([]model.Assessment, error)
}

// ItemRepo is the item persistence surface of the service.
type ItemRepo interface {
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.Item, error)
	SumMarks(ctx context.Context, assessmentID uuid.UUID) (int, error)
	ReplaceForAssessment(ctx context.Context, assessmentID uuid.UUID, items []model.Item) error
}

// AttemptCounter reports whether attempts exist against an assessment.
type AttemptCounter interface {
	CountByAssessment(ctx context.Context, assessmentID uuid.UUID) (int64, error)
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID, page, perPage int) ([]repository.AttemptResult, int64, error)
}

// AssessmentService handles assessment authoring and the student-facing
// paper cache.
type AssessmentService struct {
	assessments AssessmentRepo
	items       ItemRepo
	attempts    AttemptCounter
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(
	assessments AssessmentRepo,
	items ItemRepo,
	attempts AttemptCounter,
	rdb *redis.Client,
	log zerolog.Logger,
) *AssessmentService {
	return &AssessmentService{
		assessments: assessments,
		items:       items,
		attempts:    attempts,
		rdb:         rdb,
		log:         log.With().Str("component", "assessment_service").Logger(),
	}
}

// Create creates a DRAFT assessment with a collision-checked join code.
func (s *AssessmentService) Create(ctx context.Context, ownerID int, req *model.CreateAssessmentRequest) (*model.Assessment, error) {
	code, err := s.allocateJoinCode(ctx)
	if err != nil {
		return nil, err
	}

	a := &model.Assessment{
		JoinCode:        code,
		Title:           req.Title,
		Kind:            model.AssessmentKind(req.Kind),
		OwnerID:         ownerID,
		TotalMarks:      req.TotalMarks,
		ScheduledStart:  req.ScheduledStart,
		ScheduledEnd:    req.ScheduledEnd,
		DurationMinutes: req.DurationMinutes,
		Status:          model.AssessmentStatusDraft,
	}
	if err := s.assessments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}
	return a, nil
}

// GetOwned returns the assessment if it belongs to the teacher.
func (s *AssessmentService) GetOwned(ctx context.Context, id uuid.UUID, ownerID int) (*model.Assessment, error) {
	a, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	if a.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return a, nil
}

// ListByOwner lists a teacher's assessments.
func (s *AssessmentService) ListByOwner(ctx context.Context, ownerID int) ([]model.Assessment, error) {
	return s.assessments.ListByOwner(ctx, ownerID)
}

// ReplaceItems replaces the question set of a DRAFT assessment. An assessment
// with existing attempts is immutable except for status transitions.
func (s *AssessmentService) ReplaceItems(ctx context.Context, id uuid.UUID, ownerID int, req *model.ReplaceItemsRequest) error {
	a, err := s.GetOwned(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if a.Status != model.AssessmentStatusDraft {
		return ErrNotDraft
	}

	count, err := s.attempts.CountByAssessment(ctx, id)
	if err != nil {
		return fmt.Errorf("count attempts: %w", err)
	}
	if count > 0 {
		return ErrAssessmentLocked
	}

	items := make([]model.Item, 0, len(req.Items))
	for _, in := range req.Items {
		items = append(items, model.Item{
			AssessmentID: id,
			Kind:         model.ItemKind(in.Kind),
			Prompt:       in.Prompt,
			Options:      in.Options,
			TestCases:    in.TestCases,
			AnswerKey:    in.AnswerKey,
			Language:     in.Language,
			Marks:        in.Marks,
			Position:     in.Position,
		})
	}
	if err := s.items.ReplaceForAssessment(ctx, id, items); err != nil {
		return fmt.Errorf("replace items: %w", err)
	}
	return nil
}

// Publish transitions DRAFT → PUBLISHED after checking the marks-sum
// invariant, then prewarms the paper cache so the first joiners never
// stampede PostgreSQL.
func (s *AssessmentService) Publish(ctx context.Context, id uuid.UUID, ownerID int) (*model.Assessment, error) {
	a, err := s.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AssessmentStatusDraft {
		return nil, ErrNotDraft
	}

	items, err := s.items.ListByAssessment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	sum, err := s.items.SumMarks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sum marks: %w", err)
	}
	if sum != a.TotalMarks {
		return nil, ErrMarksMismatch
	}

	ok, err := s.assessments.UpdateStatus(ctx, id,
		[]model.AssessmentStatus{model.AssessmentStatusDraft}, model.AssessmentStatusPublished)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	a.Status = model.AssessmentStatusPublished

	if err := s.warmPaperCache(ctx, a, items); err != nil {
		s.log.Warn().Err(err).Str("assessment_id", id.String()).Msg("Paper cache prewarm failed")
	}

	return a, nil
}

// Cancel transitions DRAFT or PUBLISHED → CANCELLED.
func (s *AssessmentService) Cancel(ctx context.Context, id uuid.UUID, ownerID int) error {
	if _, err := s.GetOwned(ctx, id, ownerID); err != nil {
		return err
	}
	ok, err := s.assessments.UpdateStatus(ctx, id,
		[]model.AssessmentStatus{model.AssessmentStatusDraft, model.AssessmentStatusPublished},
		model.AssessmentStatusCancelled)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if !ok {
		return ErrInvalidTransition
	}
	_ = s.rdb.Del(ctx, config.CacheKey.PaperKey(id)).Err()
	return nil
}

// Complete transitions PUBLISHED → COMPLETED once the window is over.
func (s *AssessmentService) Complete(ctx context.Context, id uuid.UUID, ownerID int) error {
	if _, err := s.GetOwned(ctx, id, ownerID); err != nil {
		return err
	}
	ok, err := s.assessments.UpdateStatus(ctx, id,
		[]model.AssessmentStatus{model.AssessmentStatusPublished}, model.AssessmentStatusCompleted)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if !ok {
		return ErrInvalidTransition
	}
	return nil
}

// GetPaper returns the student-facing paper, Redis-first with a PostgreSQL
// fallback that self-heals the cache.
func (s *AssessmentService) GetPaper(ctx context.Context, assessmentID uuid.UUID) (*model.AssessmentPaper, error) {
	key := config.CacheKey.PaperKey(assessmentID)

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		paper := &model.AssessmentPaper{}
		if jsonErr := json.Unmarshal([]byte(raw), paper); jsonErr == nil {
			return paper, nil
		}
		// Corrupt cache entry: fall through and rebuild.
	} else if !errors.Is(err, redis.Nil) {
		// A cache outage degrades to PostgreSQL instead of failing the paper fetch.
		s.log.Warn().Err(err).Msg("Paper cache unavailable, serving from database")
	}

	a, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	items, err := s.items.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	if err := s.warmPaperCache(ctx, a, items); err != nil {
		s.log.Warn().Err(err).Msg("Paper cache self-heal failed")
	}

	return buildPaper(a, items), nil
}

// Results returns the paginated attempt results of an owned assessment.
func (s *AssessmentService) Results(ctx context.Context, id uuid.UUID, ownerID, page, perPage int) ([]repository.AttemptResult, int64, error) {
	if _, err := s.GetOwned(ctx, id, ownerID); err != nil {
		return nil, 0, err
	}
	return s.attempts.ListByAssessment(ctx, id, page, perPage)
}

// allocateJoinCode draws random 6-character codes until one is free.
func (s *AssessmentService) allocateJoinCode(ctx context.Context) (string, error) {
	for i := 0; i < joinCodeRetries; i++ {
		code, err := randomJoinCode()
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		exists, err := s.assessments.JoinCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check join code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrJoinCodeExhausted
}

func randomJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func buildPaper(a *model.Assessment, items []model.Item) *model.AssessmentPaper {
	paper := &model.AssessmentPaper{
		AssessmentID: a.ID,
		Title:        a.Title,
		Kind:         a.Kind,
		Duration:     a.DurationMinutes,
		Items:        make([]model.ItemForStudent, 0, len(items)),
	}
	for _, it := range items {
		paper.Items = append(paper.Items, model.ItemForStudent{
			ID:        it.ID,
			Kind:      it.Kind,
			Prompt:    it.Prompt,
			Options:   it.Options,
			TestCases: it.TestCases,
			Language:  it.Language,
			Marks:     it.Marks,
			Position:  it.Position,
		})
	}
	return paper
}

func (s *AssessmentService) warmPaperCache(ctx context.Context, a *model.Assessment, items []model.Item) error {
	raw, err := json.Marshal(buildPaper(a, items))
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.PaperKey(a.ID), raw, 0)
	pipe.Set(ctx, config.CacheKey.DurationKey(a.ID), a.DurationMinutes, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write paper cache: %w", err)
	}
	return nil
}

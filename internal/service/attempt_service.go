package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/scoring"
)

// Attempt lifecycle errors. Handlers map these onto typed response codes;
// state conflicts stay distinct from validation so clients can route the
// student to a results view instead of retrying.
var (
	ErrInvalidCode      = errors.New("no open assessment matches this join code")
	ErrNotYetOpen       = errors.New("assessment has not opened yet")
	ErrAlreadyEnded     = errors.New("assessment has already ended")
	ErrAlreadyCompleted = errors.New("attempt is already completed")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptNotActive = errors.New("attempt is not in progress")
	ErrItemNotInAttempt = errors.New("item does not belong to the attempt's assessment")
)

// AssessmentStore is the assessment lookup surface the state machine needs.
type AssessmentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error)
	GetByJoinCode(ctx context.Context, code string) (*model.Assessment, error)
}

// AttemptStore is the attempt persistence surface the state machine needs.
// Finalize must apply the graded answers and the status flip as one
// transaction, returning pgx.ErrNoRows when the attempt is no longer
// IN_PROGRESS.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetByAssessmentAndStudent(ctx context.Context, assessmentID uuid.UUID, studentID int) (*model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) error
	Finalize(ctx context.Context, attemptID uuid.UUID, status model.AttemptStatus, score float64, graded []model.GradedAnswer) error
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.Attempt, error)
}

// ItemStore is the item lookup surface the state machine needs.
type ItemStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Item, error)
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.Item, error)
}

// AnswerStore is the answer persistence surface the state machine needs.
type AnswerStore interface {
	Upsert(ctx context.Context, a *model.Answer) error
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
}

// FinalizeResult summarizes one finalize pass.
type FinalizeResult struct {
	Score         float64 `json:"score"`
	TotalItems    int     `json:"total_items"`
	AnsweredCount int     `json:"answered_count"`
}

// JoinResult carries an attempt plus whether this join created it.
type JoinResult struct {
	Attempt *model.Attempt `json:"attempt"`
	IsNew   bool           `json:"is_new"`
}

// AttemptService owns the lifecycle of assessment attempts: creation/resume,
// answer persistence, and finalization. It is the only component with write
// authority over attempt and answer state.
type AttemptService struct {
	assessments AssessmentStore
	attempts    AttemptStore
	items       ItemStore
	answers     AnswerStore
	engine      *scoring.Engine
	rdb         *redis.Client
	log         zerolog.Logger

	finalizeTimeout time.Duration
	scoreWorkers    int
	now             func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	assessments AssessmentStore,
	attempts AttemptStore,
	items ItemStore,
	answers AnswerStore,
	engine *scoring.Engine,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *AttemptService {
	workers := cfg.ScoreWorkers
	if workers <= 0 {
		workers = 1
	}
	return &AttemptService{
		assessments:     assessments,
		attempts:        attempts,
		items:           items,
		answers:         answers,
		engine:          engine,
		rdb:             rdb,
		log:             log.With().Str("component", "attempt_service").Logger(),
		finalizeTimeout: cfg.FinalizeTimeout,
		scoreWorkers:    workers,
		now:             time.Now,
	}
}

// Join resolves a join code to an attempt. A lost connection must not fork a
// second attempt, so an existing IN_PROGRESS attempt is returned unchanged;
// a terminal attempt rejects with ErrAlreadyCompleted.
func (s *AttemptService) Join(ctx context.Context, code string, studentID int) (*JoinResult, error) {
	assessment, err := s.assessments.GetByJoinCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("get assessment by code: %w", err)
	}

	if assessment.Status != model.AssessmentStatusPublished {
		return nil, ErrInvalidCode
	}

	now := s.now()
	if assessment.ScheduledStart != nil && now.Before(*assessment.ScheduledStart) {
		return nil, ErrNotYetOpen
	}
	if assessment.ScheduledEnd != nil && now.After(*assessment.ScheduledEnd) {
		return nil, ErrAlreadyEnded
	}

	existing, err := s.attempts.GetByAssessmentAndStudent(ctx, assessment.ID, studentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing attempt: %w", err)
	}
	if existing != nil {
		if existing.Status != model.AttemptStatusInProgress {
			return nil, ErrAlreadyCompleted
		}
		// Idempotent resume: re-seed the cached start instant in case the
		// student rejoined from another device or the key was evicted.
		s.cacheStart(ctx, existing)
		return &JoinResult{Attempt: existing}, nil
	}

	attempt := &model.Attempt{
		AssessmentID: assessment.ID,
		StudentID:    studentID,
		Status:       model.AttemptStatusInProgress,
		StartedAt:    now,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the insert race against a concurrent join; use the winner.
			winner, fetchErr := s.attempts.GetByAssessmentAndStudent(ctx, assessment.ID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent join detected, but fetch failed: %w", fetchErr)
			}
			if winner.Status != model.AttemptStatusInProgress {
				return nil, ErrAlreadyCompleted
			}
			return &JoinResult{Attempt: winner}, nil
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	attempt.Status = model.AttemptStatusInProgress

	s.cacheStart(ctx, attempt)

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("assessment_id", assessment.ID.String()).
		Int("student_id", studentID).
		Msg("Attempt created")

	return &JoinResult{Attempt: attempt, IsNew: true}, nil
}

// SaveAnswer upserts one answer during an IN_PROGRESS attempt. Correctness is
// never computed here — intermediate saves stay cheap and side-effect-free on
// the execution adapter.
func (s *AttemptService) SaveAnswer(ctx context.Context, attemptID, itemID uuid.UUID, studentID int, value string) (*model.Answer, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptNotActive
	}

	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotInAttempt
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	if item.AssessmentID != attempt.AssessmentID {
		return nil, ErrItemNotInAttempt
	}

	answer := &model.Answer{AttemptID: attemptID, ItemID: itemID, Value: value}
	if err := s.answers.Upsert(ctx, answer); err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}
	return answer, nil
}

// Submit saves any answers carried on the submit payload, then finalizes.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.SubmitRequest) (*FinalizeResult, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrAlreadyCompleted
	}

	for itemID, value := range req.Answers {
		if _, err := s.SaveAnswer(ctx, attemptID, itemID, studentID, value); err != nil {
			// A single bad item must not block submission of the rest.
			s.log.Warn().Err(err).
				Str("attempt_id", attemptID.String()).
				Str("item_id", itemID.String()).
				Msg("Skipping unsaveable answer at submit")
		}
	}

	return s.Finalize(ctx, attemptID)
}

// Finalize scores every saved answer and completes the attempt. It is
// idempotency-guarded: a second call observes the terminal status and fails
// with ErrAlreadyCompleted, leaving the first score untouched.
func (s *AttemptService) Finalize(ctx context.Context, attemptID uuid.UUID) (*FinalizeResult, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return s.finalize(ctx, attempt, model.AttemptStatusCompleted)
}

// FinalizeByAssessment is the fallback for clients that lost their
// attempt reference: it resolves (assessment, student) to the live attempt,
// creating a fresh one if none exists at all. It never re-finalizes a
// terminal attempt.
func (s *AttemptService) FinalizeByAssessment(ctx context.Context, assessmentID uuid.UUID, studentID int) (*FinalizeResult, error) {
	attempt, err := s.attempts.GetByAssessmentAndStudent(ctx, assessmentID, studentID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get attempt: %w", err)
		}
		attempt = &model.Attempt{
			AssessmentID: assessmentID,
			StudentID:    studentID,
			Status:       model.AttemptStatusInProgress,
			StartedAt:    s.now(),
		}
		if createErr := s.attempts.Create(ctx, attempt); createErr != nil {
			return nil, fmt.Errorf("create fallback attempt: %w", createErr)
		}
	}
	return s.finalize(ctx, attempt, model.AttemptStatusCompleted)
}

// FinalizeTimedOut completes an overdue attempt with TIMED_OUT status,
// scoring whatever answers were saved before the deadline.
func (s *AttemptService) FinalizeTimedOut(ctx context.Context, attempt *model.Attempt) (*FinalizeResult, error) {
	return s.finalize(ctx, attempt, model.AttemptStatusTimedOut)
}

// ListOverdue exposes overdue IN_PROGRESS attempts to the deadline sweeper.
func (s *AttemptService) ListOverdue(ctx context.Context, limit int) ([]model.Attempt, error) {
	return s.attempts.ListOverdue(ctx, s.now(), limit)
}

// GetState returns the autosaved answers and remaining time for a reload.
func (s *AttemptService) GetState(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptState, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptNotActive
	}

	assessment, err := s.assessments.GetByID(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}

	autosaved, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get autosaved answers: %w", err)
	}

	startedAt := attempt.StartedAt
	// Prefer the cached start instant when present; self-heal on miss.
	if val, err := s.rdb.Get(ctx, config.CacheKey.AttemptStartKey(attemptID)).Result(); err == nil {
		if unix, parseErr := strconv.ParseInt(val, 10, 64); parseErr == nil {
			startedAt = time.Unix(unix, 0)
		}
	} else if errors.Is(err, redis.Nil) {
		s.cacheStart(ctx, attempt)
	}

	deadline := startedAt.Add(time.Duration(assessment.DurationMinutes) * time.Minute)
	if assessment.ScheduledEnd != nil && assessment.ScheduledEnd.Before(deadline) {
		deadline = *assessment.ScheduledEnd
	}
	remaining := deadline.Sub(s.now())
	if remaining < 0 {
		remaining = 0
	}

	return &model.AttemptState{
		AttemptID:        attemptID,
		AssessmentID:     attempt.AssessmentID,
		AutosavedAnswers: autosaved,
		RemainingSeconds: remaining.Seconds(),
	}, nil
}

// GetOwned returns the attempt if it belongs to the student.
func (s *AttemptService) GetOwned(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	return s.getOwnedAttempt(ctx, attemptID, studentID)
}

// ────────────────────────────────────────────────────────────────────────────
// Internal
// ────────────────────────────────────────────────────────────────────────────

func (s *AttemptService) getOwnedAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

type gradedItem struct {
	position int
	graded   model.GradedAnswer
	marks    float64
}

// finalize runs the scoring pass and persists it atomically. Scoring fans out
// across items on a bounded worker pool; test cases within one item remain
// sequential inside the engine.
func (s *AttemptService) finalize(ctx context.Context, attempt *model.Attempt, status model.AttemptStatus) (*FinalizeResult, error) {
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrAlreadyCompleted
	}

	// Generous bound: the pass may issue one adapter call per code test case
	// per code item.
	ctx, cancel := context.WithTimeout(ctx, s.finalizeTimeout)
	defer cancel()

	items, err := s.items.ListByAssessment(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	saved, err := s.answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	valueByItem := make(map[uuid.UUID]string, len(saved))
	for _, a := range saved {
		valueByItem[a.ItemID] = a.Value
	}

	var (
		mu      sync.Mutex
		results []gradedItem
		wg      sync.WaitGroup
		sem     = make(chan struct{}, s.scoreWorkers)
	)

	for i := range items {
		item := items[i]
		value, answered := valueByItem[item.ID]
		if !answered {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(position int) {
			defer wg.Done()
			defer func() { <-sem }()

			g := s.scoreItem(ctx, &item, value)

			mu.Lock()
			results = append(results, gradedItem{position: position, graded: g, marks: g.MarksAwarded})
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	// Deterministic persistence order, and marks summed as real numbers.
	sort.Slice(results, func(i, j int) bool { return results[i].position < results[j].position })

	total := 0.0
	graded := make([]model.GradedAnswer, 0, len(results))
	for _, r := range results {
		total += r.marks
		graded = append(graded, r.graded)
	}

	if err := s.attempts.Finalize(ctx, attempt.ID, status, total, graded); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// A concurrent forced trigger won the race; the first score stands.
			return nil, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}

	// The autosave buffer is no longer needed once the attempt is terminal.
	_ = s.rdb.Del(ctx, config.CacheKey.AttemptAnswersKey(attempt.ID)).Err()

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("status", string(status)).
		Float64("score", total).
		Int("answered", len(graded)).
		Msg("Attempt finalized")

	return &FinalizeResult{
		Score:         total,
		TotalItems:    len(items),
		AnsweredCount: len(graded),
	}, nil
}

// scoreItem dispatches one answer to the engine by item kind. Nothing here is
// allowed to abort the pass: a wholly uncomputable item contributes zero.
func (s *AttemptService) scoreItem(ctx context.Context, item *model.Item, value string) model.GradedAnswer {
	switch item.Kind {
	case model.ItemKindCode:
		res := s.engine.ScoreCode(ctx, item, scoring.ParseSubmission(value))
		return model.GradedAnswer{
			ItemID:       item.ID,
			Correct:      res.Total > 0 && res.Passed == res.Total,
			MarksAwarded: res.Marks,
			ResultLedger: res.Ledger,
		}
	default:
		res := s.engine.ScoreChoice(item, value)
		return model.GradedAnswer{
			ItemID:       item.ID,
			Correct:      res.Correct,
			MarksAwarded: res.Marks,
		}
	}
}

func (s *AttemptService) cacheStart(ctx context.Context, attempt *model.Attempt) {
	key := config.CacheKey.AttemptStartKey(attempt.ID)
	if err := s.rdb.Set(ctx, key, attempt.StartedAt.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to cache start time")
	}
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/validator"
)

// AssessmentHandler handles teacher-facing assessment authoring endpoints.
type AssessmentHandler struct {
	assessmentService *service.AssessmentService
	attempts          *repository.AttemptRepository
	events            *repository.ProctorEventRepository
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(
	assessmentService *service.AssessmentService,
	attempts *repository.AttemptRepository,
	events *repository.ProctorEventRepository,
) *AssessmentHandler {
	return &AssessmentHandler{
		assessmentService: assessmentService,
		attempts:          attempts,
		events:            events,
	}
}

// failAuthoring maps authoring service errors onto typed response codes.
func failAuthoring(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAssessmentNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAssessmentNotFound)
	case errors.Is(err, service.ErrNotOwner):
		response.Fail(c, http.StatusForbidden, response.ErrNotOwner)
	case errors.Is(err, service.ErrNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrNotDraft)
	case errors.Is(err, service.ErrNoItems):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoItems)
	case errors.Is(err, service.ErrMarksMismatch):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrMarksMismatch)
	case errors.Is(err, service.ErrAssessmentLocked):
		response.Fail(c, http.StatusConflict, response.ErrAssessmentLocked)
	case errors.Is(err, service.ErrInvalidTransition):
		response.Fail(c, http.StatusConflict, response.ErrInvalidTransition)
	case errors.Is(err, service.ErrJoinCodeExhausted):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrJoinCodeExhausted)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// Create godoc
// POST /api/v1/teacher/assessments
// Creates a DRAFT assessment and allocates its join code.
func (h *AssessmentHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateAssessmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	assessment, err := h.assessmentService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failAuthoring(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"assessment": assessment})
}

// List godoc
// GET /api/v1/teacher/assessments
// Lists the authenticated teacher's assessments.
func (h *AssessmentHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessments, err := h.assessmentService.ListByOwner(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if assessments == nil {
		assessments = []model.Assessment{}
	}

	response.Success(c, http.StatusOK, gin.H{"assessments": assessments})
}

// Get godoc
// GET /api/v1/teacher/assessments/:assessment_id
func (h *AssessmentHandler) Get(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	assessment, err := h.assessmentService.GetOwned(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failAuthoring(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"assessment": assessment})
}

// ReplaceItems godoc
// PUT /api/v1/teacher/assessments/:assessment_id/items
// Replaces the full question set of a DRAFT assessment.
func (h *AssessmentHandler) ReplaceItems(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReplaceItemsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.assessmentService.ReplaceItems(c.Request.Context(), id, claims.UserID, &req); err != nil {
		failAuthoring(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Publish godoc
// POST /api/v1/teacher/assessments/:assessment_id/publish
// Transitions DRAFT to PUBLISHED once the marks-sum invariant holds.
func (h *AssessmentHandler) Publish(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	assessment, err := h.assessmentService.Publish(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failAuthoring(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"assessment": assessment})
}

// Cancel godoc
// POST /api/v1/teacher/assessments/:assessment_id/cancel
func (h *AssessmentHandler) Cancel(c *gin.Context) {
	h.transition(c, h.assessmentService.Cancel)
}

// Complete godoc
// POST /api/v1/teacher/assessments/:assessment_id/complete
func (h *AssessmentHandler) Complete(c *gin.Context) {
	h.transition(c, h.assessmentService.Complete)
}

// Results godoc
// GET /api/v1/teacher/assessments/:assessment_id/results?page=1&per_page=50
// Returns paginated attempt outcomes for one owned assessment.
func (h *AssessmentHandler) Results(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, perPage := paginationParams(c)

	results, total, err := h.assessmentService.Results(c.Request.Context(), id, claims.UserID, page, perPage)
	if err != nil {
		failAuthoring(c, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages,
	})
}

// AttemptEvents godoc
// GET /api/v1/teacher/assessments/:assessment_id/attempts/:attempt_id/events
// Returns the proctoring audit trail of one attempt for review.
func (h *AssessmentHandler) AttemptEvents(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if _, err := h.assessmentService.GetOwned(c.Request.Context(), assessmentID, claims.UserID); err != nil {
		failAuthoring(c, err)
		return
	}

	attempt, err := h.attempts.GetByID(c.Request.Context(), attemptID)
	if err != nil || attempt.AssessmentID != assessmentID {
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
		return
	}

	events, err := h.events.ListByAttempt(c.Request.Context(), attemptID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if events == nil {
		events = []model.ProctorEvent{}
	}

	violations, err := h.events.CountViolations(c.Request.Context(), attemptID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"events": events, "violation_count": violations})
}

// transition runs one owner-checked status transition and reports the result.
func (h *AssessmentHandler) transition(c *gin.Context, fn func(ctx context.Context, id uuid.UUID, ownerID int) error) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, err := uuid.Parse(c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := fn(c.Request.Context(), id, claims.UserID); err != nil {
		failAuthoring(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

func paginationParams(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "50"))
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	return page, perPage
}

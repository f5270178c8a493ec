package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/validator"
)

// PortalHandler handles student-facing endpoints (joining, taking, submitting).
type PortalHandler struct {
	attemptService    *service.AttemptService
	assessmentService *service.AssessmentService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(attemptService *service.AttemptService, assessmentService *service.AssessmentService) *PortalHandler {
	return &PortalHandler{
		attemptService:    attemptService,
		assessmentService: assessmentService,
	}
}

// failAttempt maps attempt lifecycle errors onto typed response codes.
func failAttempt(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCode):
		response.Fail(c, http.StatusNotFound, response.ErrInvalidCode)
	case errors.Is(err, service.ErrNotYetOpen):
		response.Fail(c, http.StatusConflict, response.ErrNotYetOpen)
	case errors.Is(err, service.ErrAlreadyEnded):
		response.Fail(c, http.StatusConflict, response.ErrAlreadyEnded)
	case errors.Is(err, service.ErrAlreadyCompleted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadyCompleted)
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrAttemptNotActive):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
	case errors.Is(err, service.ErrItemNotInAttempt):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrItemNotInAttempt)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// Join godoc
// POST /api/v1/student/attempts/join
// Resolves a join code to an attempt: creates one on first join, resumes an
// IN_PROGRESS one, rejects a completed one.
func (h *PortalHandler) Join(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.JoinRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Join(c.Request.Context(), req.Code, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	response.Success(c, status, gin.H{"attempt": result.Attempt, "is_new": result.IsNew})
}

// GetPaper godoc
// GET /api/v1/student/attempts/:attempt_id/paper
// Returns the question paper, answer keys stripped. Ownership of the attempt
// is checked first so students cannot pull papers they have not joined.
func (h *PortalHandler) GetPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attemptService.GetOwned(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}

	paper, err := h.assessmentService.GetPaper(c.Request.Context(), attempt.AssessmentID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// GetState godoc
// GET /api/v1/student/attempts/:attempt_id/state
// Returns autosaved answers and remaining seconds for a page reload.
func (h *PortalHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.attemptService.GetState(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// SaveAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/answers
// Upserts one answer. Repeated saves for the same item overwrite.
func (h *PortalHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.attemptService.SaveAnswer(c.Request.Context(), attemptID, req.ItemID, claims.UserID, req.Value)
	if err != nil {
		failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answer_id": answer.ID, "updated_at": answer.UpdatedAt})
}

// Submit godoc
// POST /api/v1/student/attempts/:attempt_id/submit
// Saves any answers on the payload, then scores and completes the attempt.
// The response carries the final score; the operation is idempotency-guarded.
func (h *PortalHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), attemptID, claims.UserID, &req)
	if err != nil {
		failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// SubmitByAssessment godoc
// POST /api/v1/student/assessments/:assessment_id/submit
// Recovery path for clients that lost their attempt reference: resolves
// (assessment, student) to the live attempt and finalizes it. Creates an empty
// attempt if none exists at all, but never re-finalizes a terminal one.
func (h *PortalHandler) SubmitByAssessment(c *gin.Context) {
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

	result, err := h.attemptService.FinalizeByAssessment(c.Request.Context(), assessmentID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// GetResult godoc
// GET /api/v1/student/attempts/:attempt_id/result
// Returns the terminal attempt with its score.
func (h *PortalHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attemptService.GetOwned(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failAttempt(c, err)
		return
	}

	// An IN_PROGRESS attempt simply has a nil score; clients poll this after
	// submitting or after a forced finalize notification.
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Join / attempt lifecycle ──────────────────────────────────────
	ErrInvalidCode        ErrCode = "INVALID_CODE"
	ErrNotYetOpen         ErrCode = "NOT_YET_OPEN"
	ErrAlreadyEnded       ErrCode = "ALREADY_ENDED"
	ErrAlreadyCompleted   ErrCode = "ALREADY_COMPLETED"
	ErrAttemptNotActive   ErrCode = "ATTEMPT_NOT_ACTIVE"
	ErrItemNotInAttempt   ErrCode = "ITEM_NOT_IN_ASSESSMENT"
	ErrAttemptNotFound    ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAssessmentNotFound ErrCode = "ASSESSMENT_NOT_FOUND"

	// ─── Assessment authoring ──────────────────────────────────────────
	ErrNotOwner          ErrCode = "NOT_ASSESSMENT_OWNER"
	ErrNotDraft          ErrCode = "ASSESSMENT_NOT_DRAFT"
	ErrNoItems           ErrCode = "NO_ITEMS"
	ErrMarksMismatch     ErrCode = "MARKS_MISMATCH"
	ErrAssessmentLocked  ErrCode = "ASSESSMENT_LOCKED"
	ErrInvalidTransition ErrCode = "INVALID_STATUS_TRANSITION"
	ErrJoinCodeExhausted ErrCode = "JOIN_CODE_EXHAUSTED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
// Students always get an actionable next step: resume, restart, or view
// results — never a bare failure.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrTeacherAccessOnly:
		return "This resource is restricted to teachers."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Join / attempt lifecycle ──────────────────────────────────────
	case ErrInvalidCode:
		return "No open assessment matches this join code."
	case ErrNotYetOpen:
		return "This assessment has not opened yet. Try again at the scheduled start."
	case ErrAlreadyEnded:
		return "This assessment has already ended."
	case ErrAlreadyCompleted:
		return "You have already completed this assessment. View your results instead."
	case ErrAttemptNotActive:
		return "This attempt is no longer in progress."
	case ErrItemNotInAttempt:
		return "This question does not belong to your assessment."
	case ErrAttemptNotFound:
		return "No attempt found. Join the assessment first."
	case ErrAssessmentNotFound:
		return "Assessment not found."

	// ─── Assessment authoring ──────────────────────────────────────────
	case ErrNotOwner:
		return "You are not the owner of this assessment."
	case ErrNotDraft:
		return "This assessment is not in DRAFT status."
	case ErrNoItems:
		return "This assessment has no questions."
	case ErrMarksMismatch:
		return "The sum of question marks must equal the assessment's total marks."
	case ErrAssessmentLocked:
		return "This assessment already has attempts and can no longer be edited."
	case ErrInvalidTransition:
		return "This status transition is not permitted."
	case ErrJoinCodeExhausted:
		return "Could not allocate a unique join code. Please retry."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

package response

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/ksred/fexp-api/pkg/apperr"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Retryable bool                `json:"retryable,omitempty"`
	Details   []apperr.FieldIssue `json:"details,omitempty"`
	Debug     string              `json:"debug,omitempty"`
}

// Common error codes
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeDuplicateResource = "DUPLICATE_RESOURCE"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeRateLimited       = "RATE_LIMITED"
)

var development atomic.Bool

// SetDevelopment controls whether internal error causes are included in responses
func SetDevelopment(enabled bool) {
	development.Store(enabled)
}

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		handleAppError(c, appErr)
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		Conflict(c, "Resource already exists")
	default:
		handleError(c, err)
	}
}

// StatusFor is the HTTP status an application error is reported with. State pre-condition
// failures are 400; conflicts with a concurrent request are 409 so callers know to retry.
func StatusFor(err *apperr.Error) int {
	switch err.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		if err.Retryable {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, &Error{Code: ErrCodeNotFound, Message: message})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, &Error{Code: ErrCodeBadRequest, Message: message})
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, &Error{Code: ErrCodeUnauthorized, Message: message})
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, &Error{Code: ErrCodeForbidden, Message: message})
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, &Error{Code: ErrCodeInternalError, Message: message})
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	fail(c, http.StatusConflict, &Error{Code: ErrCodeDuplicateResource, Message: message})
}

// TooManyRequests sends a 429 response
func TooManyRequests(c *gin.Context, message string) {
	fail(c, http.StatusTooManyRequests, &Error{Code: ErrCodeRateLimited, Message: message, Retryable: true})
}

func fail(c *gin.Context, status int, e *Error) {
	c.JSON(status, Response{
		Success: false,
		Error:   e,
	})
}

func handleAppError(c *gin.Context, err *apperr.Error) {
	body := &Error{
		Code:      err.Kind.String(),
		Message:   err.Message,
		Retryable: err.Retryable,
		Details:   err.Issues,
	}
	if development.Load() && err.Err != nil {
		body.Debug = err.Err.Error()
	}
	fail(c, StatusFor(err), body)
}

// handleError determines the appropriate error response
func handleError(c *gin.Context, err error) {
	body := &Error{Code: ErrCodeInternalError, Message: "An unexpected error occurred"}
	if development.Load() {
		body.Debug = err.Error()
	}
	fail(c, http.StatusInternalServerError, body)
}

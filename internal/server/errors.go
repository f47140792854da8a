package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/researchhub/internal/activation"
	chatdomain "github.com/smallbiznis/researchhub/internal/chat/domain"
	collabdomain "github.com/smallbiznis/researchhub/internal/collaboration/domain"
	notificationdomain "github.com/smallbiznis/researchhub/internal/notification/domain"
	projectdomain "github.com/smallbiznis/researchhub/internal/project/domain"
	"github.com/smallbiznis/researchhub/internal/realtime"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(err),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, collabdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: detailOr(err, "forbidden"),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: detailOr(err, "not found"),
		}
	case isInvalidStateError(err):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_state",
			Message: detailOr(err, "invalid state"),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: detailOr(err, "conflict"),
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded on request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	var domainErr *collabdomain.Error
	if errors.As(err, &domainErr) {
		code = domainErr.Code
	}
	return payload.Type, code
}

// detailOr exposes the stable code of a workflow error and a generic message otherwise.
func detailOr(err error, fallback string) string {
	var domainErr *collabdomain.Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return fallback
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, collabdomain.ErrValidation),
		errors.Is(err, projectdomain.ErrInvalidOwner),
		errors.Is(err, projectdomain.ErrInvalidTitle),
		errors.Is(err, projectdomain.ErrInvalidRequiredCollaborators),
		errors.Is(err, chatdomain.ErrEmptyMessage),
		errors.Is(err, chatdomain.ErrMessageTooLong),
		errors.Is(err, notificationdomain.ErrInvalidUser),
		errors.Is(err, realtime.ErrInvalidRoom):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, collabdomain.ErrForbidden),
		errors.Is(err, projectdomain.ErrForbidden),
		errors.Is(err, chatdomain.ErrForbidden):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, collabdomain.ErrNotFound),
		errors.Is(err, projectdomain.ErrNotFound),
		errors.Is(err, chatdomain.ErrProjectNotFound),
		errors.Is(err, notificationdomain.ErrNotFound),
		errors.Is(err, activation.ErrProjectNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isInvalidStateError(err error) bool {
	switch {
	case errors.Is(err, collabdomain.ErrInvalidState),
		errors.Is(err, chatdomain.ErrChatNotActive),
		errors.Is(err, projectdomain.ErrQuorumLocked):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, collabdomain.ErrConflict),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return false
	}
}

func validationErrorField(err error) string {
	switch {
	case errors.Is(err, collabdomain.ErrInvalidDecision):
		return "decision"
	case errors.Is(err, collabdomain.ErrInvalidRequester),
		errors.Is(err, projectdomain.ErrInvalidOwner),
		errors.Is(err, notificationdomain.ErrInvalidUser):
		return "user_id"
	case errors.Is(err, projectdomain.ErrInvalidTitle):
		return "title"
	case errors.Is(err, projectdomain.ErrInvalidRequiredCollaborators):
		return "required_collaborators"
	case errors.Is(err, chatdomain.ErrEmptyMessage),
		errors.Is(err, chatdomain.ErrMessageTooLong):
		return "content"
	case errors.Is(err, realtime.ErrInvalidRoom):
		return "projectId"
	default:
		return "request"
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"chauffeur/internal/service"
	"chauffeur/internal/wizard"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const (
	codeValidation       = "validation_error"
	codeBadRequest       = "bad_request"
	codeNotFound         = "not_found"
	codeStepLocked       = "step_locked"
	codeNotReady         = "not_ready"
	codeRateLimited      = "rate_limited"
	codeSubmissionFailed = "submission_failed"
	codeTimeout          = "timeout"
	codeInternal         = "internal_error"
)

type errorResponse struct {
	Error     string      `json:"error"`
	Code      string      `json:"code"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func abortWithError(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status, errorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: c.GetString(ctxRequestID),
	})
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var verr *wizard.ValidationError
	switch {
	case errors.As(err, &verr):
		abortWithError(c, http.StatusUnprocessableEntity, codeValidation, "validation failed", verr)
	case errors.Is(err, service.ErrSessionNotFound):
		abortWithError(c, http.StatusNotFound, codeNotFound, "session not found", nil)
	case errors.Is(err, service.ErrUnknownForm):
		abortWithError(c, http.StatusNotFound, codeNotFound, "unknown form", nil)
	case errors.Is(err, wizard.ErrStepLocked):
		abortWithError(c, http.StatusConflict, codeStepLocked, err.Error(), nil)
	case errors.Is(err, service.ErrNotReady):
		abortWithError(c, http.StatusConflict, codeNotReady, err.Error(), nil)
	case errors.Is(err, wizard.ErrStepOutOfRange):
		abortWithError(c, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
	case errors.Is(err, service.ErrRateLimited):
		abortWithError(c, http.StatusTooManyRequests, codeRateLimited, "too many submissions, try again later", nil)
	case errors.Is(err, service.ErrSubmissionFailed):
		requestLogger(c).Error().Err(err).Msg("submission failed")
		abortWithError(c, http.StatusBadGateway, codeSubmissionFailed, "your request could not be sent, please try again", nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		abortWithError(c, http.StatusGatewayTimeout, codeTimeout, "request timed out", nil)
	default:
		requestLogger(c).Error().Err(err).Msg("unhandled error")
		abortWithError(c, http.StatusInternalServerError, codeInternal, "internal error", nil)
	}
}

// respondBindError reports malformed bodies and failed binding rules.
func respondBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]wizard.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, wizard.FieldError{
				Field:   jsonFieldName(fe),
				Message: bindingMessage(fe),
			})
		}
		abortWithError(c, http.StatusUnprocessableEntity, codeValidation, "validation failed", gin.H{"fields": fields})
		return
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		abortWithError(c, http.StatusBadRequest, codeBadRequest, "invalid JSON body", nil)
	default:
		abortWithError(c, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
	}
}

func jsonFieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func bindingMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	default:
		return "is invalid"
	}
}

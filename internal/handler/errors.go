package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/attempt"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/repository"
	"github.com/smquiz/quiz-backend/internal/response"
	"github.com/smquiz/quiz-backend/internal/service"
)

// statusFor maps a domain error to the HTTP status and code sent to the
// client. Unknown errors are internal.
func statusFor(err error) (int, response.ErrCode) {
	var qErr *model.QuestionError
	switch {
	case errors.As(err, &qErr):
		return http.StatusBadRequest, response.ErrInvalidQuestion
	case errors.Is(err, service.ErrPaperNotFound):
		return http.StatusNotFound, response.ErrPaperNotFound
	case errors.Is(err, service.ErrSetMismatch):
		return http.StatusBadRequest, response.ErrPaperNotFound
	case errors.Is(err, attempt.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrAttemptNotFound
	case errors.Is(err, attempt.ErrSessionClosed):
		return http.StatusGone, response.ErrAttemptClosed
	case errors.Is(err, service.ErrAttemptActive), errors.Is(err, attempt.ErrAttemptActive):
		return http.StatusConflict, response.ErrAttemptActive
	case errors.Is(err, service.ErrNotOwner):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrNotSubmitted):
		return http.StatusConflict, response.ErrNotSubmitted
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrUnknownQuestion), errors.Is(err, service.ErrDuplicateQuestion):
		return http.StatusBadRequest, response.ErrInvalidPayload
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failWith writes the error response for err. Question validation errors
// carry the offending field.
func failWith(c *gin.Context, err error) {
	status, code := statusFor(err)
	var qErr *model.QuestionError
	if errors.As(err, &qErr) {
		response.FailWithFields(c, status, code, map[string]string{qErr.Field: qErr.Reason})
		return
	}
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Msg("Request failed")
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}

// paramUUID parses the named path parameter, writing a 400 when it is not
// a UUID.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

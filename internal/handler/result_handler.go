package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/middleware"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/response"
	"github.com/smquiz/quiz-backend/internal/service"
	"github.com/smquiz/quiz-backend/internal/validator"
)

// ResultHandler accepts results from client-run attempts and lists stored
// results.
type ResultHandler struct {
	resultService  *service.ResultService
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewResultHandler creates a new ResultHandler.
func NewResultHandler(resultService *service.ResultService, attemptService *service.AttemptService, log zerolog.Logger) *ResultHandler {
	return &ResultHandler{
		resultService:  resultService,
		attemptService: attemptService,
		log:            log.With().Str("component", "result_handler").Logger(),
	}
}

type pageQuery struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1,max=100"`
}

type resultListQuery struct {
	pageQuery
	SubjectID string `form:"subject_id" binding:"omitempty,uuid"`
	SetID     string `form:"set_id" binding:"omitempty,uuid"`
	UserID    *int   `form:"user_id" binding:"omitempty,min=1"`
	Passed    *bool  `form:"passed"`
}

func (q resultListQuery) filter() model.ResultFilter {
	f := model.ResultFilter{UserID: q.UserID, Passed: q.Passed}
	if id, err := uuid.Parse(q.SubjectID); err == nil {
		f.SubjectID = &id
	}
	if id, err := uuid.Parse(q.SetID); err == nil {
		f.SetID = &id
	}
	return f
}

// SubmitResult godoc
// POST /api/v1/student/results
// Records the result of an attempt run by the client. The answers are graded
// again on the server; a repeated attempt_id is rejected.
func (h *ResultHandler) SubmitResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitResultRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	// Server-run attempts submit through their own session.
	if h.attemptService.IsLive(req.AttemptID) {
		response.Fail(c, http.StatusConflict, response.ErrAttemptActive)
		return
	}

	review, err := h.resultService.SubmitClientResult(c.Request.Context(), claims, &req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, review)
}

// History godoc
// GET /api/v1/student/results
func (h *ResultHandler) History(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var q pageQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	results, pagination, err := h.resultService.History(c.Request.Context(), claims.UserID, q.Page, q.PerPage)
	if err != nil {
		failWith(c, err)
		return
	}
	if results == nil {
		results = []model.ResultSummary{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

// ListResults godoc
// GET /api/v1/admin/results?subject_id=&set_id=&user_id=&passed=&page=&per_page=
func (h *ResultHandler) ListResults(c *gin.Context) {
	var q resultListQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	results, pagination, err := h.resultService.List(c.Request.Context(), q.filter(), q.Page, q.PerPage)
	if err != nil {
		failWith(c, err)
		return
	}
	if results == nil {
		results = []model.ResultSummary{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}

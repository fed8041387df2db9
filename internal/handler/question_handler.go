package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/model"
	"github.com/smquiz/quiz-backend/internal/response"
	"github.com/smquiz/quiz-backend/internal/service"
	"github.com/smquiz/quiz-backend/internal/validator"
)

// QuestionHandler serves question papers to students and the question bank
// to staff.
type QuestionHandler struct {
	questionService *service.QuestionService
	log             zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		log:             log.With().Str("component", "question_handler").Logger(),
	}
}

// bindPaperQuery reads ?subject_id= and ?set_id=, requiring at least one.
func bindPaperQuery(c *gin.Context) (model.PaperRef, bool) {
	var q model.PaperQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return model.PaperRef{}, false
	}
	ref, ok := q.Ref()
	if !ok {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"subject_id": "subject_id or set_id is required",
		})
		return model.PaperRef{}, false
	}
	return ref, true
}

// FetchQuestions godoc
// GET /api/v1/student/questions?subject_id=|set_id=
// Returns the paper without answer keys.
func (h *QuestionHandler) FetchQuestions(c *gin.Context) {
	ref, ok := bindPaperQuery(c)
	if !ok {
		return
	}

	paper, err := h.questionService.FetchPaper(c.Request.Context(), ref)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// ListQuestions godoc
// GET /api/v1/admin/questions?subject_id=|set_id=
// Lists the questions of a paper including answer keys.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	ref, ok := bindPaperQuery(c)
	if !ok {
		return
	}

	questions, err := h.questionService.List(c.Request.Context(), ref)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// CreateQuestion godoc
// POST /api/v1/admin/questions
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	var req model.QuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.questionService.Create(c.Request.Context(), &req)
	if err != nil {
		failWith(c, err)
		return
	}

	h.log.Info().Str("question_id", q.ID.String()).Str("type", string(q.Type())).Msg("Question created")
	response.Success(c, http.StatusCreated, gin.H{"question": q})
}

// UpdateQuestion godoc
// PUT /api/v1/admin/questions/:id
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req model.QuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.questionService.Update(c.Request.Context(), id, &req)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question": q})
}

// DeleteQuestion godoc
// DELETE /api/v1/admin/questions/:id
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), id); err != nil {
		failWith(c, err)
		return
	}

	h.log.Info().Str("question_id", id.String()).Msg("Question deleted")
	response.Success(c, http.StatusOK, gin.H{"message": "question deleted"})
}

// RefreshCache godoc
// POST /api/v1/admin/questions/refresh-cache?subject_id=|set_id=
// Reloads one paper into Redis, or every paper when no id is given.
func (h *QuestionHandler) RefreshCache(c *gin.Context) {
	var q model.PaperQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctx := c.Request.Context()
	if ref, ok := q.Ref(); ok {
		if err := h.questionService.RefreshCache(ctx, ref); err != nil {
			failWith(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"refreshed": ref.Key()})
		return
	}

	if err := h.questionService.PrewarmAllCaches(ctx); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"refreshed": "all"})
}

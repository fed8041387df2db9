package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smquiz/quiz-backend/internal/response"
	"github.com/smquiz/quiz-backend/internal/service"
)

type SubjectHandler struct {
	subjectService *service.SubjectService
}

func NewSubjectHandler(subjectService *service.SubjectService) *SubjectHandler {
	return &SubjectHandler{subjectService: subjectService}
}

// Catalog godoc
// GET /api/v1/subjects
func (h *SubjectHandler) Catalog(c *gin.Context) {
	catalog, err := h.subjectService.Catalog(c.Request.Context())
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"subjects": catalog})
}

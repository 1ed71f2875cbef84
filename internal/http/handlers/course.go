package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/examcourse-backend/internal/http/response"
	"github.com/yungbote/examcourse-backend/internal/modules/coursegen"
	"github.com/yungbote/examcourse-backend/internal/platform/ctxutil"
	"github.com/yungbote/examcourse-backend/internal/platform/logger"
)

type CourseService interface {
	Generate(ctx context.Context, req coursegen.Request) (*coursegen.Summary, error)
	Status(ctx context.Context, examID, userID uuid.UUID) (*coursegen.CourseStatus, error)
}

type CourseHandler struct {
	log     *logger.Logger
	service CourseService
}

func NewCourseHandler(log *logger.Logger, service CourseService) *CourseHandler {
	return &CourseHandler{log: log.With("handler", "CourseHandler"), service: service}
}

type generateCourseBody struct {
	Force bool `json:"force"`
}

// POST /api/exams/:id/course
func (h *CourseHandler) GenerateCourse(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_exam_id", err)
		return
	}
	var body generateCourseBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	summary, err := h.service.Generate(c.Request.Context(), coursegen.Request{
		ExamID: examID,
		UserID: rd.UserID,
		Force:  body.Force,
	})
	if err != nil {
		_ = c.Error(err)
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"course": summary})
}

// GET /api/exams/:id/course
func (h *CourseHandler) GetCourse(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_exam_id", err)
		return
	}
	status, err := h.service.Status(c.Request.Context(), examID, rd.UserID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"course": status})
}

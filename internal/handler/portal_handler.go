package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ruangujian/ruangujian-backend/internal/middleware"
	"github.com/ruangujian/ruangujian-backend/internal/model"
	"github.com/ruangujian/ruangujian-backend/internal/response"
	"github.com/ruangujian/ruangujian-backend/internal/service"
	"github.com/ruangujian/ruangujian-backend/internal/validator"
)

// PortalHandler handles the student-facing exam portal endpoints.
type PortalHandler struct {
	sessions *service.SessionService
	catalog  *service.CatalogService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(sessions *service.SessionService, catalog *service.CatalogService) *PortalHandler {
	return &PortalHandler{sessions: sessions, catalog: catalog}
}

// GetLobby godoc
// GET /api/v1/student/lobby
// Returns the published exams with the student's own status overlay.
func (h *PortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.sessions.Lobby(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": lobby})
}

// JoinExam godoc
// POST /api/v1/student/exams/:exam_id/join
// Validates the entry token and admits the student. Idempotent for an
// in-progress session; rejected after submission.
func (h *PortalHandler) JoinExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.JoinExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	payload, err := h.sessions.Join(c.Request.Context(), examID, claims.UserID, req.EntryToken)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExamNotPublished):
			response.Fail(c, http.StatusBadRequest, response.ErrExamNotPublished)
		case errors.Is(err, service.ErrInvalidEntryToken):
			response.Fail(c, http.StatusForbidden, response.ErrInvalidEntryToken)
		case errors.Is(err, service.ErrAlreadySubmitted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": payload})
}

// GetExamPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Returns the keyless question payload for a joined exam.
func (h *PortalHandler) GetExamPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// A paper is only served against a live session.
	if _, err := h.sessions.State(c.Request.Context(), examID, claims.UserID); err != nil {
		h.failSessionError(c, err)
		return
	}

	payload, err := h.catalog.GetPayload(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": payload})
}

// GetExamState godoc
// GET /api/v1/student/exams/:exam_id/state
// Returns the autosaved answers and remaining time for reload recovery.
func (h *PortalHandler) GetExamState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.sessions.State(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		h.failSessionError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// GetResult godoc
// GET /api/v1/student/exams/:exam_id/result
// Returns the student's submitted attempt summary.
func (h *PortalHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.sessions.CachedAttempt(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"result": gin.H{
			"examId":         attempt.ExamID,
			"score":          attempt.Score,
			"violationCount": attempt.ViolationCount,
			"submittedAt":    attempt.SubmittedAt,
		},
	})
}

func (h *PortalHandler) failSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoActiveSession):
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

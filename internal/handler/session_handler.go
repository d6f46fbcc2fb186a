package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/98iam/classtrack-api/internal/models"
	"github.com/98iam/classtrack-api/internal/service"
	appErrors "github.com/98iam/classtrack-api/pkg/errors"
	"github.com/98iam/classtrack-api/pkg/response"
)

// SessionHandler exposes the attendance-taking session endpoints.
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Start godoc
// @Summary Start an attendance-taking session
// @Description Snapshots the active roster into a roll-ordered queue.
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /session/start [post]
func (h *SessionHandler) Start(c *gin.Context) {
	view, err := h.sessions.Start(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// View godoc
// @Summary Current session state
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /session [get]
func (h *SessionHandler) View(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.sessions.View(), nil)
}

type decideRequest struct {
	Status models.AttendanceStatus `json:"status" binding:"required"`
}

// Decide godoc
// @Summary Mark the current student present or absent
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body decideRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /session/decide [post]
func (h *SessionHandler) Decide(c *gin.Context) {
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	view, err := h.sessions.Decide(req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Undo godoc
// @Summary Undo the most recent decision
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /session/undo [post]
func (h *SessionHandler) Undo(c *gin.Context) {
	view, err := h.sessions.Undo()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Close godoc
// @Summary Close the session and commit its decisions
// @Description Commits all decisions to the ledger in one batch. On failure
// the session is preserved so the close can be retried.
// @Tags Session
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /session/close [post]
func (h *SessionHandler) Close(c *gin.Context) {
	result, err := h.sessions.Close(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

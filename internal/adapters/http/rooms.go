package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Buzzline/internal/app/orch"
	"github.com/dkeye/Buzzline/internal/domain"
)

type createRoomRequest struct {
	MaxParticipants  *int            `json:"maxParticipants" binding:"omitempty,min=1,max=1000"`
	ExpiresInMinutes *int            `json:"expiresInMinutes" binding:"omitempty,min=1,max=1440"`
	Metadata         json.RawMessage `json:"metadata"`
}

type roomHandler struct {
	orch *orch.Orchestrator
}

func (h *roomHandler) create(c *gin.Context) {
	var req createRoomRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, CodeValidation, err.Error())
			return
		}
	}
	ticket, err := h.orch.CreateRoom(c.Request.Context(), currentProject(c), orch.CreateRoomParams{
		MaxParticipants:  req.MaxParticipants,
		ExpiresInMinutes: req.ExpiresInMinutes,
		Metadata:         req.Metadata,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusCreated, ticketBody(ticket))
}

func (h *roomHandler) get(c *gin.Context) {
	view, err := h.orch.DescribeRoom(c.Request.Context(), currentProject(c), domain.RoomID(c.Param("id")))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, view)
}

func (h *roomHandler) peers(c *gin.Context) {
	peers, err := h.orch.ListPeers(c.Request.Context(), currentProject(c), domain.RoomID(c.Param("id")))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, peers)
}

func (h *roomHandler) join(c *gin.Context) {
	ticket, err := h.orch.IssueJoinToken(c.Request.Context(), currentProject(c), domain.RoomID(c.Param("id")))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	respond(c, http.StatusOK, ticketBody(ticket))
}

func ticketBody(t orch.Ticket) gin.H {
	return gin.H{
		"roomId":    t.RoomID,
		"token":     t.Token,
		"expiresAt": t.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

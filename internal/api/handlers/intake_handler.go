package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/services"
)

type IntakeHandler struct {
	svc services.ConversationService
}

func NewIntakeHandler(svc services.ConversationService) *IntakeHandler {
	return &IntakeHandler{svc: svc}
}

type messageRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
}

type conversationResponse struct {
	ConversationID string           `json:"conversation_id"`
	Flow           models.Flow      `json:"flow"`
	Messages       []models.Message `json:"messages"`
	Completed      bool             `json:"completed"`
	ExtractedData  json.RawMessage  `json:"extracted_data"`
}

func toConversationResponse(conv *models.Conversation) conversationResponse {
	out := conversationResponse{
		ConversationID: conv.ID,
		Flow:           conv.Flow,
		Messages:       conv.Messages,
		Completed:      conv.Completed,
		ExtractedData:  json.RawMessage("null"),
	}
	if out.Messages == nil {
		out.Messages = []models.Message{}
	}
	if len(conv.ExtractedData) > 0 {
		out.ExtractedData = json.RawMessage(conv.ExtractedData)
	}
	return out
}

func (h *IntakeHandler) Start(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conv, err := h.svc.Start(c.Request.Context(), userID, models.FlowIntake)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toConversationResponse(conv))
}

func (h *IntakeHandler) Message(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req messageRequest
	if !bindJSON(c, "IntakeHandler.Message", &req) {
		return
	}

	res, err := h.svc.Send(c.Request.Context(), userID, models.FlowIntake, req.ConversationID, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response":       res.Reply,
		"completed":      res.Completed,
		"extracted_data": res.Profile,
	})
}

func (h *IntakeHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conv, err := h.svc.Get(c.Request.Context(), userID, c.Param("conversation_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toConversationResponse(conv))
}

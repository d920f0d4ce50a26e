package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/services"
)

type ProfileHandler struct {
	profiles services.ProfileService
	convs    services.ConversationService
	updates  services.ProfileUpdateService
}

func NewProfileHandler(profiles services.ProfileService, convs services.ConversationService, updates services.ProfileUpdateService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, convs: convs, updates: updates}
}

func (h *ProfileHandler) Current(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	p, err := h.profiles.GetCurrent(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": p.ConversationID,
		"profile_data":    json.RawMessage(p.Data),
		"updated_at":      p.UpdatedAt,
	})
}

func (h *ProfileHandler) StartUpdate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conv, err := h.convs.Start(c.Request.Context(), userID, models.FlowProfileUpdate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toConversationResponse(conv))
}

func (h *ProfileHandler) UpdateMessage(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req messageRequest
	if !bindJSON(c, "ProfileHandler.UpdateMessage", &req) {
		return
	}

	res, err := h.convs.Send(c.Request.Context(), userID, models.FlowProfileUpdate, req.ConversationID, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response":          res.Reply,
		"completed":         res.Completed,
		"extracted_changes": res.ChangeSet,
	})
}

// confirmRequest.Changes is the change set returned as extracted_changes,
// optionally edited by the client.
type confirmRequest struct {
	ConversationID     string            `json:"conversation_id" binding:"required"`
	Changes            *models.ChangeSet `json:"changes"`
	RegeneratePrograms bool              `json:"regenerate_programs"`
}

func (h *ProfileHandler) ConfirmUpdate(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req confirmRequest
	if !bindJSON(c, "ProfileHandler.ConfirmUpdate", &req) {
		return
	}

	res, err := h.updates.Confirm(c.Request.Context(), userID, req.ConversationID, req.Changes, req.RegeneratePrograms)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"profile_update_id":    res.UpdateID,
		"updated_profile":      res.Profile,
		"changes":              res.Changes,
		"programs_regenerated": res.ProgramsRegenerated,
		"new_program":          res.Program,
		"regeneration_error":   res.RegenerationError,
	})
}

func (h *ProfileHandler) Updates(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	rows, err := h.updates.History(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = []models.ProfileUpdate{}
	}
	c.JSON(http.StatusOK, gin.H{"updates": rows})
}

// UserUpdates is the admin view of another user's update history.
func (h *ProfileHandler) UserUpdates(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	rows, err := h.updates.History(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = []models.ProfileUpdate{}
	}
	c.JSON(http.StatusOK, gin.H{"updates": rows})
}

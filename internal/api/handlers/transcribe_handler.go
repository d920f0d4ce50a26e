package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/fitcoach/internal/services"
	"github.com/yoockh/fitcoach/internal/utils"
)

type TranscribeHandler struct {
	svc services.TranscriptionService
}

func NewTranscribeHandler(svc services.TranscriptionService) *TranscribeHandler {
	return &TranscribeHandler{svc: svc}
}

func (h *TranscribeHandler) Transcribe(c *gin.Context) {
	const op = "TranscribeHandler.Transcribe"

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxAudioBytes+(1<<20))
	fh, err := c.FormFile("audio")
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "no audio file provided", err))
		return
	}
	if fh.Size > services.MaxAudioBytes {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "audio file exceeds 10MB", nil))
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "failed to read audio file", err))
		return
	}
	defer f.Close()

	audio, err := io.ReadAll(io.LimitReader(f, services.MaxAudioBytes+1))
	if err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "failed to read audio file", err))
		return
	}

	out, err := h.svc.Transcribe(c.Request.Context(), userID, audio, fh.Header.Get("Content-Type"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

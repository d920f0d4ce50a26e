package services

import (
	"bytes"
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/fitcoach/internal/providers/stt"
	"github.com/yoockh/fitcoach/internal/storage"
	"github.com/yoockh/fitcoach/internal/utils"
)

const MaxAudioBytes = 10 << 20

type Transcript struct {
	Text       string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	StoredPath string  `json:"stored_path,omitempty"`
}

type TranscriptionService interface {
	Transcribe(ctx context.Context, userID string, audio []byte, mimeType string) (*Transcript, error)
}

type transcriptionService struct {
	stt      stt.Provider
	archive  storage.Uploader
	language string
	log      logrus.FieldLogger
}

// NewTranscriptionService: a nil provider makes every call Unavailable, a
// nil archive skips archiving.
func NewTranscriptionService(p stt.Provider, archive storage.Uploader, language string, log logrus.FieldLogger) TranscriptionService {
	return &transcriptionService{stt: p, archive: archive, language: language, log: log}
}

func (s *transcriptionService) Transcribe(ctx context.Context, userID string, audio []byte, mimeType string) (*Transcript, error) {
	const op = "TranscriptionService.Transcribe"

	if s.stt == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "transcription is not configured", nil)
	}
	if len(audio) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "no audio file provided", nil)
	}
	if len(audio) > MaxAudioBytes {
		return nil, utils.E(utils.CodeInvalidArgument, op, "audio file exceeds 10MB", nil)
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	text, conf, err := s.stt.Transcribe(ctx, audio, mimeType, s.language)
	if err != nil {
		if utils.IsCode(err, utils.CodeInvalidArgument) {
			return nil, err
		}
		return nil, utils.E(utils.CodeUnavailable, op, "transcription failed, please try again", err)
	}
	out := &Transcript{Text: text, Confidence: conf}

	if s.archive != nil {
		name := path.Join("audio", userID, time.Now().UTC().Format("20060102"), uuid.NewString()+audioExt(mimeType))
		stored, err := s.archive.Upload(ctx, name, mimeType, bytes.NewReader(audio))
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("audio archive upload failed")
		} else {
			out.StoredPath = stored
		}
	}
	return out, nil
}

func audioExt(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	default:
		return ".webm"
	}
}

package stt

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/yoockh/fitcoach/internal/utils"
)

type GoogleSpeech struct {
	c *speech.Client

	// SampleRateHz applies to opus uploads; WAV headers carry their own.
	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context, sampleRate int32) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return &GoogleSpeech{c: c, SampleRateHz: sampleRate}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// language example: "en-US", "id-ID"
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, float64, error) {
	const op = "GoogleSpeech.Transcribe"

	if language == "" {
		language = "en-US"
	}
	enc, ok := encodingFor(mimeType)
	if !ok {
		return "", 0, utils.E(utils.CodeInvalidArgument, op, "unsupported audio type "+mimeType, nil)
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:                   enc,
		LanguageCode:               language,
		EnableAutomaticPunctuation: true,
	}
	if enc != speechpb.RecognitionConfig_LINEAR16 {
		cfg.SampleRateHertz = g.SampleRateHz
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", 0, err
	}

	// results are consecutive segments; join the best alternative of each
	var parts []string
	var confSum float64
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 || r.Alternatives[0].Transcript == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(r.Alternatives[0].Transcript))
		confSum += float64(r.Alternatives[0].Confidence)
	}
	if len(parts) == 0 {
		return "", 0, nil
	}
	return strings.Join(parts, " "), confSum / float64(len(parts)), nil
}

func encodingFor(mimeType string) (speechpb.RecognitionConfig_AudioEncoding, bool) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	switch mt {
	case "audio/webm", "video/webm":
		return speechpb.RecognitionConfig_WEBM_OPUS, true
	case "audio/ogg", "audio/opus":
		return speechpb.RecognitionConfig_OGG_OPUS, true
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/l16":
		return speechpb.RecognitionConfig_LINEAR16, true
	case "audio/flac", "audio/x-flac":
		return speechpb.RecognitionConfig_FLAC, true
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, false
	}
}

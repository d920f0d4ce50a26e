package stt

import "context"

type Provider interface {
	// mimeType is the upload's content type, ex "audio/webm".
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) (text string, confidence float64, err error)
	Close() error
}

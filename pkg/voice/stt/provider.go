// Package stt provides speech-to-text for spoken user turns.
package stt

import (
	"context"
	"io"
)

// Provider is the interface for speech-to-text services.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model    string // Provider-specific model (default: "ink-whisper")
	Language string // ISO language code (default: "en")
	Format   string // Audio format hint (wav, mp3, webm, ...)
}

// Transcript is the result of transcription.
type Transcript struct {
	Text     string
	Language string
	Duration float64
}

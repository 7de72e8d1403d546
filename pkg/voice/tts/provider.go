// Package tts provides text-to-speech for the avatar's spoken replies.
package tts

import "context"

// Provider is the interface for text-to-speech services.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice   string // Provider voice identifier
	Emotion string // Mood hint (neutral, happy, sad, ...)
	Format  string // "mp3" or "pcm"
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio  []byte
	Format string
}

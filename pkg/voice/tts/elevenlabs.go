package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	elevenLabsDefaultBase  = "https://api.elevenlabs.io/v1"
	elevenLabsDefaultModel = "eleven_turbo_v2_5"
)

type ElevenLabsProvider struct {
	apiKey       string
	baseURL      string
	defaultVoice string
	model        string
	httpClient   *http.Client
}

var _ Provider = (*ElevenLabsProvider)(nil)

func NewElevenLabs(apiKey, voiceID string) *ElevenLabsProvider {
	return &ElevenLabsProvider{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      elevenLabsDefaultBase,
		defaultVoice: voiceID,
		model:        elevenLabsDefaultModel,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *ElevenLabsProvider) WithBaseURL(base string) *ElevenLabsProvider {
	if base = strings.TrimSpace(base); base != "" {
		e.baseURL = strings.TrimRight(base, "/")
	}
	return e
}

func (e *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// settingsFor maps a mood onto ElevenLabs expressiveness. Livelier moods trade
// stability for style.
func settingsFor(emotion string) voiceSettings {
	switch strings.ToLower(emotion) {
	case "happy", "excited", "surprised":
		return voiceSettings{Stability: 0.35, SimilarityBoost: 0.75, Style: 0.6}
	case "sad", "concerned":
		return voiceSettings{Stability: 0.6, SimilarityBoost: 0.75, Style: 0.3}
	default:
		return voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Style: 0}
	}
}

func outputFormat(format string) (query, name string) {
	if strings.EqualFold(format, "pcm") {
		return "pcm_24000", "pcm"
	}
	return "mp3_44100_128", "mp3"
}

func (e *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}
	voice := opts.Voice
	if voice == "" {
		voice = e.defaultVoice
	}
	if voice == "" {
		return nil, errors.New("elevenlabs voice id is required")
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:          text,
		ModelID:       e.model,
		VoiceSettings: settingsFor(opts.Emotion),
	})
	if err != nil {
		return nil, err
	}

	query, format := outputFormat(opts.Format)
	reqURL := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, url.PathEscape(voice), query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs error %d: %s", resp.StatusCode, string(audio))
	}

	return &Synthesis{Audio: audio, Format: format}, nil
}

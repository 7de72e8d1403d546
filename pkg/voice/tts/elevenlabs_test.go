package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevenLabsSynthesize(t *testing.T) {
	var got synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text-to-speech/voice-1", r.URL.Path)
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer srv.Close()

	p := NewElevenLabs("secret", "voice-1").WithBaseURL(srv.URL)
	out, err := p.Synthesize(context.Background(), "Hello there", SynthesizeOptions{Emotion: "happy"})
	require.NoError(t, err)

	assert.Equal(t, []byte("ID3-audio"), out.Audio)
	assert.Equal(t, "mp3", out.Format)
	assert.Equal(t, "Hello there", got.Text)
	assert.Equal(t, 0.6, got.VoiceSettings.Style)
}

func TestElevenLabsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid key"}`))
	}))
	defer srv.Close()

	p := NewElevenLabs("bad", "voice-1").WithBaseURL(srv.URL)

	_, err := p.Synthesize(context.Background(), "hi", SynthesizeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = p.Synthesize(context.Background(), "  ", SynthesizeOptions{})
	assert.Error(t, err)

	_, err = NewElevenLabs("k", "").Synthesize(context.Background(), "hi", SynthesizeOptions{})
	assert.Error(t, err)
}

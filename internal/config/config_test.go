package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"companion-be/pkg/coordinator"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("T_INT", "7")
	t.Setenv("T_FLOAT", "0.35")
	t.Setenv("T_BOOL", "true")
	t.Setenv("T_DUR", "90s")
	t.Setenv("T_SECS", "15")
	t.Setenv("T_BAD", "nope")

	assert.Equal(t, 7, getEnvAsInt("T_INT", 1))
	assert.Equal(t, 1, getEnvAsInt("T_BAD", 1))
	assert.InDelta(t, 0.35, getEnvAsFloat("T_FLOAT", 0.4), 1e-9)
	assert.InDelta(t, 0.4, getEnvAsFloat("T_MISSING", 0.4), 1e-9)
	assert.True(t, getEnvAsBool("T_BOOL", false))
	assert.Equal(t, 90*time.Second, getEnvAsDuration("T_DUR", time.Second))
	assert.Equal(t, 15*time.Second, getEnvAsDuration("T_SECS", time.Second))
	assert.Equal(t, time.Second, getEnvAsDuration("T_BAD", time.Second))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/companion")
	t.Setenv("RECOGNITION_MATCH_THRESHOLD", "0.5")

	cfg := Load()
	assert.Equal(t, filepath.Join("/tmp/companion", "face_descriptors.json"), cfg.Storage.FaceStorePath)
	assert.InDelta(t, 0.5, cfg.Recognition.MatchThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Recognition.BatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Session.GreetCooldown)
	assert.Equal(t, 2*time.Second, cfg.Session.IdentifyDelay)
	assert.Equal(t, 30*time.Minute, cfg.Recognition.DetectionTTL)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "companion-be", cfg.Tracing.ServiceName)
	assert.InDelta(t, 1.0, cfg.Tracing.SampleRatio, 1e-9)
}

func TestLoadPersona(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		p, err := LoadPersona(filepath.Join(t.TempDir(), "none.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultPersona(), p)
	})

	t.Run("partial file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "persona.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: Pip\nprompts:\n  name_prompt: Who goes there?\n"), 0o644))

		p, err := LoadPersona(path)
		require.NoError(t, err)
		assert.Equal(t, "Pip", p.Name)
		assert.Equal(t, defaultSystemPrompt, p.SystemPrompt)
		assert.Equal(t, "Who goes there?", p.Prompts.NamePrompt)
		assert.Equal(t, coordinator.DefaultPrompts().FallbackReply, p.Prompts.FallbackReply)
		assert.Equal(t, "Pip", p.Dialogue().Name)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "persona.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: [unterminated"), 0o644))
		_, err := LoadPersona(path)
		assert.Error(t, err)
	})

	t.Run("shipped persona", func(t *testing.T) {
		p, err := LoadPersona(filepath.Join("..", "..", "config", "persona.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "Nova", p.Name)
	})
}

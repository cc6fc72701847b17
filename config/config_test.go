package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Default Tests ---

func TestGetApplicationConfig_Defaults(t *testing.T) {
	v, err := InitConfig()
	require.NoError(t, err)

	cfg, err := GetApplicationConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "triage-api", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10, cfg.MaxConcurrentSessions)
	assert.Equal(t, 30, cfg.IdleTimeoutSec)
	assert.Equal(t, 0.5, cfg.ConfidenceThreshold)
	assert.Equal(t, 1280, cfg.MaxFrameWidth)
	assert.Equal(t, 720, cfg.MaxFrameHeight)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxFrameSizeBytes)
	assert.Equal(t, 10, cfg.InferenceRemoteTimeoutSec)
	assert.False(t, cfg.InferenceLocalEnabled)
	assert.Equal(t, 100.0, cfg.BlurWarningThreshold)
	assert.Equal(t, 1.0, cfg.AudioWindowSeconds)
	assert.Equal(t, 10, cfg.AudioBatchSize)
	assert.Equal(t, 48000, cfg.AudioSampleRate)
	assert.NotEmpty(t, cfg.StunServers)
}

// --- Environment Override Tests ---

func TestGetApplicationConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_SESSIONS", "3")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.75")
	t.Setenv("INFERENCE_REMOTE_URL", "https://detect.example.com/wounds")
	t.Setenv("INFERENCE_REMOTE_KEY", "test-key")
	t.Setenv("STUN_SERVERS", "stun:stun.example.com:3478,stun:backup.example.com:3478")

	v, err := InitConfig()
	require.NoError(t, err)

	cfg, err := GetApplicationConfig(v)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxConcurrentSessions)
	assert.Equal(t, 0.75, cfg.ConfidenceThreshold)
	assert.True(t, cfg.RemoteInferenceConfigured())
	assert.Equal(t, []string{"stun:stun.example.com:3478", "stun:backup.example.com:3478"}, cfg.StunServers)
}

func TestGetApplicationConfig_InvalidThreshold(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "1.5")

	v, err := InitConfig()
	require.NoError(t, err)

	_, err = GetApplicationConfig(v)
	assert.Error(t, err)
}

// --- Helper Tests ---

func TestRemoteInferenceConfigured(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		key      string
		expected bool
	}{
		{"both set", "https://detect.example.com", "k", true},
		{"missing key", "https://detect.example.com", "", false},
		{"missing url", "", "k", false},
		{"whitespace only", "   ", "k", false},
		{"neither", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &AppConfig{InferenceRemoteURL: tt.url, InferenceRemoteKey: tt.key}
			assert.Equal(t, tt.expected, cfg.RemoteInferenceConfigured())
		})
	}
}

func TestMaxResolution(t *testing.T) {
	cfg := &AppConfig{MaxFrameWidth: 1280, MaxFrameHeight: 720}
	assert.Equal(t, "1280x720", cfg.MaxResolution())
}

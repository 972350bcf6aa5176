package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigSanitizer_Sanitize(t *testing.T) {
	sanitizer := NewDefaultConfigSanitizer()

	cfg := &Config{
		BuildCommand: "npm run build",
		Model: ModelConfig{
			Enabled: true,
			APIKey:  "sk-1234567890",
		},
	}

	sanitized := sanitizer.Sanitize(cfg)

	assert.Equal(t, "***REDACTED***", sanitized.Model.APIKey)
	assert.Equal(t, cfg.BuildCommand, sanitized.BuildCommand)
}

func TestDefaultConfigSanitizer_DeepCopy(t *testing.T) {
	sanitizer := NewDefaultConfigSanitizer()

	cfg := &Config{Model: ModelConfig{APIKey: "original"}}
	sanitized := sanitizer.Sanitize(cfg)

	assert.Equal(t, "original", cfg.Model.APIKey, "Sanitize must not mutate the original config")
	assert.NotSame(t, cfg, sanitized)
}

func TestNewConfigSanitizer_CustomRedaction(t *testing.T) {
	sanitizer := NewConfigSanitizer("[HIDDEN]")
	cfg := &Config{Model: ModelConfig{APIKey: "secret"}}

	sanitized := sanitizer.Sanitize(cfg)

	assert.Equal(t, "[HIDDEN]", sanitized.Model.APIKey)
}

func TestDefaultConfigSanitizer_EmptyConfig(t *testing.T) {
	sanitizer := NewDefaultConfigSanitizer()
	sanitized := sanitizer.Sanitize(&Config{})
	assert.NotNil(t, sanitized)
	assert.Empty(t, sanitized.Model.APIKey)
}

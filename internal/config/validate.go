package config

import (
	"fmt"
	"os"
	"strings"
)

// envVarForProvider maps a provider name to its conventional environment
// variable.
var envVarForProvider = map[string]string{
	"openai":   "OPENAI_API_KEY",
	"deepgram": "DEEPGRAM_API_KEY",
}

// ResolveAPIKey is the secrets provider for the core: config first, then
// environment. An empty result is a configuration error for any
// component that needs the key; callers fail fast on it.
func (c *Config) ResolveAPIKey(provider string) string {
	if p, ok := c.Providers[provider]; ok && p.APIKey != "" {
		return p.APIKey
	}
	if env, ok := envVarForProvider[provider]; ok {
		return os.Getenv(env)
	}
	return ""
}

func (c *Config) Validate() error {
	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid recording.sample_rate: %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels <= 0 {
		return fmt.Errorf("invalid recording.channels: %d", c.Recording.Channels)
	}
	if c.Recording.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid recording.frames_per_buffer: %d", c.Recording.FramesPerBuffer)
	}
	if c.Recording.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid recording.channel_buffer_size: %d", c.Recording.ChannelBufferSize)
	}

	switch c.Transcription.Provider {
	case "deepgram":
		if c.ResolveAPIKey("deepgram") == "" {
			return fmt.Errorf("Deepgram API key required: not found in config (providers.deepgram.api_key) or environment variable (DEEPGRAM_API_KEY)")
		}
	case "":
		return fmt.Errorf("invalid transcription.provider: empty")
	default:
		return fmt.Errorf("invalid transcription.provider: %s (must be deepgram)", c.Transcription.Provider)
	}

	if c.Transcription.Language != "" && !isValidLanguageCode(c.Transcription.Language) {
		return fmt.Errorf("invalid transcription.language: %s (use empty string for auto-detect or ISO-639-1 codes like 'en', 'es', 'fr')", c.Transcription.Language)
	}

	if c.Session.MaxAutoResumeAttempts <= 0 {
		return fmt.Errorf("invalid session.max_auto_resume_attempts: %d", c.Session.MaxAutoResumeAttempts)
	}

	if c.Summarization.MaxChunkDuration <= 0 {
		return fmt.Errorf("invalid summarization.max_chunk_duration: %v", c.Summarization.MaxChunkDuration)
	}
	if c.Summarization.OverlapDuration < 0 {
		return fmt.Errorf("invalid summarization.overlap_duration: %v", c.Summarization.OverlapDuration)
	}
	if c.Summarization.OverlapDuration >= c.Summarization.MaxChunkDuration {
		return fmt.Errorf("summarization.overlap_duration %v must be smaller than max_chunk_duration %v",
			c.Summarization.OverlapDuration, c.Summarization.MaxChunkDuration)
	}
	if c.Translation.MaxChunkChars <= 0 {
		return fmt.Errorf("invalid translation.max_chunk_chars: %d", c.Translation.MaxChunkChars)
	}

	if c.Notifications.Enabled {
		switch c.Notifications.Type {
		case "desktop", "log", "none":
		default:
			return fmt.Errorf("invalid notifications.type: %s (must be desktop, log or none)", c.Notifications.Type)
		}
	}
	return nil
}

// isValidLanguageCode accepts ISO-639-1 codes with an optional region
// subtag ("en", "pt-BR").
func isValidLanguageCode(code string) bool {
	parts := strings.SplitN(code, "-", 2)
	if len(parts[0]) != 2 {
		return false
	}
	for _, r := range parts[0] {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

package config

import "time"

type Config struct {
	Recording     RecordingConfig           `toml:"recording"`
	Transcription TranscriptionConfig       `toml:"transcription"`
	Session       SessionConfig             `toml:"session"`
	Summarization SummarizationConfig       `toml:"summarization"`
	Translation   TranslationConfig         `toml:"translation"`
	Notifications NotificationsConfig       `toml:"notifications"`
	Providers     map[string]ProviderConfig `toml:"providers"`
}

// ProviderConfig holds the API key for a remote provider.
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

type RecordingConfig struct {
	SampleRate        int    `toml:"sample_rate"`
	Channels          int    `toml:"channels"`
	FramesPerBuffer   int    `toml:"frames_per_buffer"`
	ChannelBufferSize int    `toml:"channel_buffer_size"`
	Directory         string `toml:"directory"`
}

type TranscriptionConfig struct {
	Provider string `toml:"provider"`
	Language string `toml:"language"`
	Model    string `toml:"model"`
	Endpoint string `toml:"endpoint"`
	// BatchModel is used for post-hoc transcription of finished files.
	BatchModel string `toml:"batch_model"`
}

type SessionConfig struct {
	AutoResumeEnabled     bool `toml:"auto_resume_enabled"`
	MaxAutoResumeAttempts int  `toml:"max_auto_resume_attempts"`
}

type SummarizationConfig struct {
	Model            string        `toml:"model"`
	Locale           string        `toml:"locale"`
	MaxConcurrency   int           `toml:"max_concurrency"`
	RequestTimeout   time.Duration `toml:"request_timeout"`
	MaxChunkDuration time.Duration `toml:"max_chunk_duration"`
	OverlapDuration  time.Duration `toml:"overlap_duration"`
}

type TranslationConfig struct {
	Model           string        `toml:"model"`
	MaxChunkChars   int           `toml:"max_chunk_chars"`
	RequestTimeout  time.Duration `toml:"request_timeout"`
	InterChunkDelay time.Duration `toml:"inter_chunk_delay"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

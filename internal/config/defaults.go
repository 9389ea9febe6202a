package config

import "time"

// DefaultConfig returns the initial configuration used for onboarding.
func DefaultConfig() *Config {
	return &Config{
		Recording: RecordingConfig{
			SampleRate:        16000,
			Channels:          1,
			FramesPerBuffer:   1024,
			ChannelBufferSize: 30,
			Directory:         "",
		},
		Transcription: TranscriptionConfig{
			Provider:   "deepgram",
			Language:   "",
			Model:      "nova-3",
			Endpoint:   "wss://api.deepgram.com/v1/listen",
			BatchModel: "whisper-1",
		},
		Session: SessionConfig{
			AutoResumeEnabled:     true,
			MaxAutoResumeAttempts: 3,
		},
		Summarization: SummarizationConfig{
			Model:            "gpt-4o-mini",
			Locale:           "en",
			MaxConcurrency:   4,
			RequestTimeout:   2 * time.Minute,
			MaxChunkDuration: 8 * time.Minute,
			OverlapDuration:  15 * time.Second,
		},
		Translation: TranslationConfig{
			Model:           "gpt-4o-mini",
			MaxChunkChars:   3000,
			RequestTimeout:  30 * time.Second,
			InterChunkDelay: 500 * time.Millisecond,
		},
		Notifications: NotificationsConfig{
			Enabled: false,
			Type:    "",
		},
		Providers: make(map[string]ProviderConfig),
	}
}

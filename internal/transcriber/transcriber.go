// Package transcriber converts PCM audio into timed transcript segments,
// either live over a streaming connection or post-hoc from a finished
// recording.
package transcriber

import (
	"context"
	"fmt"
	"time"
)

// Result is a single update from a streaming adapter. Start and End are
// offsets from the beginning of the current stream connection; Live
// rebases them onto session time before a segment is stored.
type Result struct {
	Text    string
	Speaker string
	Start   time.Duration
	End     time.Duration
	IsFinal bool
	Error   error
}

// StreamingAdapter is the contract for streaming recognition backends.
type StreamingAdapter interface {
	// Start initiates the streaming connection for the given language.
	Start(ctx context.Context, language string) error

	// SendChunk forwards raw PCM audio to the recognition stream.
	SendChunk(audio []byte) error

	// Results returns the channel carrying partial and final updates.
	Results() <-chan Result

	// Finalize signals end of audio and waits for pending final results.
	Finalize(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// Config selects and parameterizes a transcription backend.
type Config struct {
	Provider string
	APIKey   string
	Language string
	Model    string
	Endpoint string
}

func DefaultConfig() Config {
	return Config{
		Provider: "deepgram",
		Model:    "nova-3",
		Endpoint: "wss://api.deepgram.com/v1/listen",
	}
}

// RestartDelay is the fixed pause before the single automatic restart
// after a recoverable backend failure.
const RestartDelay = 2 * time.Second

// NewStreamingAdapter creates the streaming backend for the configured
// provider.
func NewStreamingAdapter(config Config) (StreamingAdapter, error) {
	switch config.Provider {
	case "deepgram":
		if config.APIKey == "" {
			return nil, fmt.Errorf("Deepgram API key required")
		}
		return NewDeepgramAdapter(config), nil
	default:
		return nil, fmt.Errorf("unsupported streaming provider: %s", config.Provider)
	}
}

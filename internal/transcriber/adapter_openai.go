package transcriber

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/memovox/memovox/internal/transcript"
)

// OpenAIBatchAdapter transcribes a finished audio file in bulk via the
// Whisper API, producing finalized segments in one shot.
type OpenAIBatchAdapter struct {
	client *openai.Client
	config Config
}

func NewOpenAIBatchAdapter(config Config) (*OpenAIBatchAdapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	return &OpenAIBatchAdapter{
		client: openai.NewClient(config.APIKey),
		config: config,
	}, nil
}

// TranscribeFile converts a recorded audio file into ordered transcript
// segments with absolute session-relative timestamps.
func (a *OpenAIBatchAdapter) TranscribeFile(ctx context.Context, path string) ([]transcript.Segment, error) {
	model := a.config.Model
	if model == "" || model == DefaultConfig().Model {
		model = openai.Whisper1
	}

	req := openai.AudioRequest{
		Model:    model,
		FilePath: path,
		Language: a.config.Language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	}

	start := time.Now()
	resp, err := a.client.CreateTranscription(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("openai-batch: API call failed after %v: %v", elapsed, err)
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	segments := make([]transcript.Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		if s.Text == "" {
			continue
		}
		segments = append(segments, transcript.NewSegment(
			"",
			s.Text,
			time.Duration(s.Start*float64(time.Second)),
			time.Duration(s.End*float64(time.Second)),
		))
	}
	transcript.SortByStart(segments)

	log.Printf("openai-batch: transcribed %s in %v (%d segments)", path, elapsed, len(segments))
	return segments, nil
}

// Package translate rewrites transcript segments into a target language
// through a rate-limited remote API, chunk by chunk.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/memovox/memovox/internal/chunker"
	"github.com/memovox/memovox/internal/retry"
	"github.com/memovox/memovox/internal/transcript"
)

// ChatClient is the slice of the OpenAI client the translator needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	Model string
	// MaxChunkChars bounds the character budget per request.
	MaxChunkChars int
	// RequestTimeout is deliberately tighter than summarization's:
	// translation payloads are smaller.
	RequestTimeout time.Duration
	// InterChunkDelay spaces sequential chunk requests to respect
	// rate limits.
	InterChunkDelay time.Duration
	// MicroChunkDelay spaces the per-segment fallback requests.
	MicroChunkDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Model:           openai.GPT4oMini,
		MaxChunkChars:   3000,
		RequestTimeout:  30 * time.Second,
		InterChunkDelay: 500 * time.Millisecond,
		MicroChunkDelay: 200 * time.Millisecond,
	}
}

// Translator processes character-bounded chunks sequentially. Segment
// identity and timing always survive translation: only text and speaker
// are swapped.
type Translator struct {
	client ChatClient
	config Config
	policy retry.Policy
	sleep  func(context.Context, time.Duration) error
}

func New(client ChatClient, config Config) *Translator {
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	if config.MaxChunkChars <= 0 {
		config.MaxChunkChars = DefaultConfig().MaxChunkChars
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	return &Translator{
		client: client,
		config: config,
		policy: retry.Default(),
		sleep:  sleepCtx,
	}
}

// NewWithKey builds a translator on the real OpenAI client.
func NewWithKey(apiKey string, config Config) (*Translator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	return New(openai.NewClient(apiKey), config), nil
}

// Translate returns a new segment list with text translated into the
// target language. An empty transcript returns nil without any remote
// call. A chunk that still fails after retries and the micro-chunk
// fallback keeps its original text rather than losing that portion of
// the transcript.
func (t *Translator) Translate(ctx context.Context, segments []transcript.Segment, targetLanguage string) ([]transcript.Segment, error) {
	chunks := chunker.ByCharCount(segments, t.config.MaxChunkChars)
	if len(chunks) == 0 {
		return nil, nil
	}

	log.Printf("translate: %d segments -> %d chunks, target=%s", len(segments), len(chunks), targetLanguage)

	out := make([]transcript.Segment, 0, len(segments))
	for _, chunk := range chunks {
		if chunk.Index > 0 {
			if err := t.sleep(ctx, t.config.InterChunkDelay); err != nil {
				return nil, err
			}
		}

		translated, err := t.processChunk(ctx, chunk, targetLanguage)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			if !isTimeout(err) {
				return nil, fmt.Errorf("translate chunk %d: %w", chunk.Index, err)
			}
			// Last resort: re-split into one-segment micro-chunks and
			// keep the original text for anything that still fails.
			log.Printf("translate: chunk %d timed out after retries, falling back to micro-chunks", chunk.Index)
			translated, err = t.fallbackMicroChunks(ctx, chunk, targetLanguage)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, translated...)
	}
	return out, nil
}

// processChunk translates one chunk with retries. The response must
// carry one output text per input segment; a count mismatch is tolerated
// by truncating to the shorter side, a documented lossy degradation.
func (t *Translator) processChunk(ctx context.Context, chunk chunker.Chunk, targetLanguage string) ([]transcript.Segment, error) {
	var texts []string
	err := t.policy.Do(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, t.config.RequestTimeout)
		defer cancel()

		resp, err := t.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
			Model: t.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(targetLanguage, len(chunk.Segments))},
				{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(chunk.Segments)},
			},
			Temperature: 0.2,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response choices")
		}

		decoded, err := decodeTexts([]byte(resp.Choices[0].Message.Content))
		if err != nil {
			return err
		}
		texts = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(texts) != len(chunk.Segments) {
		log.Printf("translate: chunk %d returned %d segments for %d inputs, truncating",
			chunk.Index, len(texts), len(chunk.Segments))
	}

	n := min(len(texts), len(chunk.Segments))
	out := make([]transcript.Segment, len(chunk.Segments))
	copy(out, chunk.Segments)
	for i := 0; i < n; i++ {
		out[i].Text = texts[i]
	}
	return out, nil
}

// fallbackMicroChunks translates segments one at a time with a short
// inter-request delay, substituting the original text for any segment
// that still fails.
func (t *Translator) fallbackMicroChunks(ctx context.Context, chunk chunker.Chunk, targetLanguage string) ([]transcript.Segment, error) {
	out := make([]transcript.Segment, len(chunk.Segments))
	copy(out, chunk.Segments)

	for i, seg := range chunk.Segments {
		if i > 0 {
			if err := t.sleep(ctx, t.config.MicroChunkDelay); err != nil {
				return nil, err
			}
		}
		micro := chunker.Chunk{Index: chunk.Index, Segments: []transcript.Segment{seg}}
		translated, err := t.processChunk(ctx, micro, targetLanguage)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			log.Printf("translate: micro-chunk for segment %s failed, keeping original text: %v", seg.ID, err)
			continue
		}
		if len(translated) == 1 {
			out[i] = translated[0]
		}
	}
	return out, nil
}

func buildSystemPrompt(targetLanguage string, count int) string {
	var b strings.Builder
	b.WriteString("You are a transcript translation assistant.\n\n")
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Translate every input segment into %s\n", targetLanguage)
	fmt.Fprintf(&b, "- Respond ONLY with a JSON object {\"segments\": [\"...\"]} containing exactly %d strings, one per input segment, in order\n", count)
	b.WriteString("- Never merge, split, drop or reorder segments\n")
	b.WriteString("- Preserve names and numbers\n")
	return b.String()
}

func buildUserPrompt(segments []transcript.Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		fmt.Fprintf(&b, "%d. %s\n", i+1, seg.Text)
	}
	return b.String()
}

type textsResponse struct {
	Segments []string `json:"segments"`
}

func decodeTexts(data []byte) ([]string, error) {
	var resp textsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode translation: %w", err)
	}
	if resp.Segments == nil {
		return nil, fmt.Errorf("decode translation: missing segments array")
	}
	return resp.Segments, nil
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

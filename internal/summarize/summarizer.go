package summarize

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/memovox/memovox/internal/chunker"
	"github.com/memovox/memovox/internal/retry"
	"github.com/memovox/memovox/internal/transcript"
)

// ChatClient is the slice of the OpenAI client the summarizer needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	Model string
	// MaxConcurrency bounds the summarization chunk fan-out so very
	// long transcripts cannot flood the remote API.
	MaxConcurrency int
	// RequestTimeout applies per attempt; summarization payloads are
	// larger than translation ones, so this is the looser of the two.
	RequestTimeout time.Duration
	Chunking       chunker.Config
}

func DefaultConfig() Config {
	return Config{
		Model:          openai.GPT4oMini,
		MaxConcurrency: 4,
		RequestTimeout: 2 * time.Minute,
		Chunking:       chunker.DefaultConfig(),
	}
}

// Summarizer fans transcript chunks out to a remote structured
// generation API and merges the partials into one Summary.
type Summarizer struct {
	client ChatClient
	config Config
	policy retry.Policy
}

func New(client ChatClient, config Config) *Summarizer {
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}
	if config.Chunking.MaxChunkDuration <= 0 {
		config.Chunking = chunker.DefaultConfig()
	}
	policy := retry.Default()
	policy.IsRetryable = retryable
	return &Summarizer{client: client, config: config, policy: policy}
}

// NewWithKey builds a summarizer on the real OpenAI client.
func NewWithKey(apiKey string, config Config) (*Summarizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	return New(openai.NewClient(apiKey), config), nil
}

// Summarize produces one Summary for the full transcript. Chunks are
// processed concurrently; a terminal failure of any chunk fails the
// whole task group and cancels unfinished siblings. An empty transcript
// returns the default summary without any remote call.
func (s *Summarizer) Summarize(ctx context.Context, segments []transcript.Segment, locale, title, notes string) (Summary, error) {
	chunks := chunker.ByDuration(segments, s.config.Chunking.MaxChunkDuration, s.config.Chunking.OverlapDuration)
	if len(chunks) == 0 {
		return Empty(locale), nil
	}

	log.Printf("summarize: %d segments -> %d chunks", len(segments), len(chunks))

	partials := make([]Summary, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrency)
	for _, chunk := range chunks {
		g.Go(func() error {
			partial, err := s.processChunk(gctx, chunk, locale, title, notes)
			if err != nil {
				return err
			}
			// Chunks complete in any order; slots are indexed by the
			// chunk's original position so the merge input is ordered.
			partials[chunk.Index] = partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	if len(partials) == 1 {
		result := partials[0]
		result.Locale = locale
		return result, nil
	}
	return s.merge(ctx, partials, locale)
}

// processChunk issues one bounded remote request for one chunk, with
// retries.
func (s *Summarizer) processChunk(ctx context.Context, chunk chunker.Chunk, locale, title, notes string) (Summary, error) {
	var result Summary
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()

		resp, err := s.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
			Model: s.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: BuildChunkSystemPrompt(locale)},
				{Role: openai.ChatMessageRoleUser, Content: BuildChunkUserPrompt(chunk, title, notes)},
			},
			Temperature: 0.2,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return classify(err, chunk.Index)
		}
		if len(resp.Choices) == 0 {
			return &ProcessingError{Kind: KindMalformedResponse, ChunkIndex: chunk.Index,
				Err: fmt.Errorf("no response choices")}
		}

		decoded, err := decodeSummary([]byte(resp.Choices[0].Message.Content), chunk.Index)
		if err != nil {
			// No silent data fabrication: a bad summary response is a
			// hard failure for the chunk once retries run out.
			return err
		}
		result = decoded
		return nil
	})
	if err != nil {
		return Summary{}, classify(err, chunk.Index)
	}
	return result, nil
}

// merge issues one additional remote request over the full ordered set
// of partials. The remote side deduplicates overlap-induced repeats;
// refs pass through untouched.
func (s *Summarizer) merge(ctx context.Context, partials []Summary, locale string) (Summary, error) {
	userPrompt, err := BuildMergeUserPrompt(partials)
	if err != nil {
		return Summary{}, err
	}

	const mergeIndex = -1
	var result Summary
	err = s.policy.Do(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()

		resp, err := s.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
			Model: s.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: BuildMergeSystemPrompt(locale)},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			Temperature: 0.2,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return classify(err, mergeIndex)
		}
		if len(resp.Choices) == 0 {
			return &ProcessingError{Kind: KindMalformedResponse, ChunkIndex: mergeIndex,
				Err: fmt.Errorf("no response choices")}
		}
		decoded, err := decodeSummary([]byte(resp.Choices[0].Message.Content), mergeIndex)
		if err != nil {
			return err
		}
		result = decoded
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("merge partials: %w", err)
	}

	result.Locale = locale
	log.Printf("summarize: merged %d partials", len(partials))
	return result, nil
}

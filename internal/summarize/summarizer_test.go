package summarize

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/memovox/memovox/internal/chunker"
	"github.com/memovox/memovox/internal/testutil"
)

// fakeChatClient answers CreateChatCompletion from a user supplied
// function and records every request.
type fakeChatClient struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	respond  func(req openai.ChatCompletionRequest) (string, error)
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	content, err := f.respond(req)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}, nil
}

func (f *fakeChatClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func noSleep(context.Context, time.Duration) error { return nil }

func testSummarizer(client ChatClient, chunking chunker.Config) *Summarizer {
	s := New(client, Config{Chunking: chunking})
	s.policy = s.policy.WithSleep(noSleep)
	return s
}

const validSummaryJSON = `{
	"overview": "A short meeting about the rollout.",
	"keyPoints": [{"text": "rollout is on track", "refs": [{"start": 12.5, "end": 48.0}]}],
	"actionItems": [{"text": "ship it", "owner": "Dana"}],
	"decisions": [],
	"quotes": [],
	"timeline": []
}`

func TestSummarizeEmptyTranscript(t *testing.T) {
	client := &fakeChatClient{respond: func(openai.ChatCompletionRequest) (string, error) {
		t.Errorf("remote call made for empty transcript")
		return "", nil
	}}
	s := testSummarizer(client, chunker.DefaultConfig())

	summary, err := s.Summarize(context.Background(), nil, "en", "", "")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary.Locale != "en" || summary.Overview != "" {
		t.Errorf("Summarize(empty) = %+v, want Empty(en)", summary)
	}
	if client.calls() != 0 {
		t.Errorf("client called %d times, want 0", client.calls())
	}
}

func TestSummarizeSingleChunkSkipsMerge(t *testing.T) {
	client := &fakeChatClient{respond: func(openai.ChatCompletionRequest) (string, error) {
		return validSummaryJSON, nil
	}}
	s := testSummarizer(client, chunker.DefaultConfig())
	segments := testutil.Segments(4, 30*time.Second, "short meeting")

	summary, err := s.Summarize(context.Background(), segments, "it", "Rollout", "")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	// One chunk means one request: the merge step is skipped entirely.
	if client.calls() != 1 {
		t.Errorf("client called %d times, want 1", client.calls())
	}
	// The requested locale always wins over whatever the model put in
	// the partial.
	if summary.Locale != "it" {
		t.Errorf("Locale = %q, want it", summary.Locale)
	}
	if summary.Overview == "" {
		t.Errorf("Overview empty")
	}
	if len(summary.KeyPoints) != 1 || summary.KeyPoints[0].Refs[0].Start != 12.5 {
		t.Errorf("KeyPoints = %+v, want the chunk refs untouched", summary.KeyPoints)
	}
}

func TestSummarizeMultiChunkMerges(t *testing.T) {
	chunking := chunker.Config{
		MaxChunkDuration: time.Minute,
		OverlapDuration:  5 * time.Second,
		MaxChunkChars:    3000,
	}
	client := &fakeChatClient{respond: func(openai.ChatCompletionRequest) (string, error) {
		return validSummaryJSON, nil
	}}
	s := testSummarizer(client, chunking)

	// 2.5 minutes against a 1 minute window: two chunks, then a merge.
	segments := testutil.Segments(5, 30*time.Second, "part of a longer call")

	summary, err := s.Summarize(context.Background(), segments, "en", "", "")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if client.calls() != 3 {
		t.Errorf("client called %d times, want 2 chunks + 1 merge", client.calls())
	}
	if summary.Locale != "en" {
		t.Errorf("Locale = %q, want en", summary.Locale)
	}

	// The merge request carries the ordered partials.
	last := client.requests[len(client.requests)-1]
	userPrompt := last.Messages[1].Content
	if !strings.Contains(userPrompt, "Part 1") || !strings.Contains(userPrompt, "Part 2") {
		t.Errorf("merge prompt missing ordered parts:\n%s", userPrompt)
	}
}

func TestSummarizeMalformedResponseFailsAfterRetries(t *testing.T) {
	client := &fakeChatClient{respond: func(openai.ChatCompletionRequest) (string, error) {
		return "this is not json", nil
	}}
	s := testSummarizer(client, chunker.DefaultConfig())
	segments := testutil.Segments(4, 30*time.Second, "text")

	_, err := s.Summarize(context.Background(), segments, "en", "", "")
	if err == nil {
		t.Fatalf("Summarize() = nil error on malformed responses")
	}

	var pe *ProcessingError
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not a ProcessingError", err)
	}
	if pe.Kind != KindMalformedResponse {
		t.Errorf("Kind = %s, want malformed_response", pe.Kind)
	}
	// Malformed responses burn the full attempt budget before the chunk
	// fails hard. No fabricated summary sneaks through.
	if client.calls() != 3 {
		t.Errorf("client called %d times, want 3 attempts", client.calls())
	}
}

func TestSummarizeShapeInvariantViolation(t *testing.T) {
	client := &fakeChatClient{respond: func(openai.ChatCompletionRequest) (string, error) {
		// Valid JSON, but the overview invariant is broken.
		return `{"overview": ""}`, nil
	}}
	s := testSummarizer(client, chunker.DefaultConfig())
	segments := testutil.Segments(2, 30*time.Second, "text")

	_, err := s.Summarize(context.Background(), segments, "en", "", "")

	var pe *ProcessingError
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not a ProcessingError", err)
	}
	if pe.Kind != KindShapeInvariant {
		t.Errorf("Kind = %s, want shape_invariant", pe.Kind)
	}
}

func TestSummarizeCancellationNotRetried(t *testing.T) {
	client := &fakeChatClient{respond: func(openai.ChatCompletionRequest) (string, error) {
		return "", context.Canceled
	}}
	s := testSummarizer(client, chunker.DefaultConfig())
	segments := testutil.Segments(2, 30*time.Second, "text")

	_, err := s.Summarize(context.Background(), segments, "en", "", "")

	var pe *ProcessingError
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is not a ProcessingError", err)
	}
	if pe.Kind != KindCancelled {
		t.Errorf("Kind = %s, want cancelled", pe.Kind)
	}
	if client.calls() != 1 {
		t.Errorf("client called %d times, want 1 (no retry on cancellation)", client.calls())
	}
}

func TestSummarizeInvalidRefsRejected(t *testing.T) {
	bad := `{"overview": "ok", "keyPoints": [{"text": "x", "refs": [{"start": 50, "end": 10}]}]}`
	client := &fakeChatClient{respond: func(openai.ChatCompletionRequest) (string, error) {
		return bad, nil
	}}
	s := testSummarizer(client, chunker.DefaultConfig())
	segments := testutil.Segments(2, 30*time.Second, "text")

	_, err := s.Summarize(context.Background(), segments, "en", "", "")

	var pe *ProcessingError
	if !errors.As(err, &pe) || pe.Kind != KindShapeInvariant {
		t.Errorf("err = %v, want shape_invariant ProcessingError", err)
	}
}

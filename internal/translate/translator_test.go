package translate

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/memovox/memovox/internal/transcript"
)

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

func testTranslator(client ChatClient, config Config) *Translator {
	tr := New(client, config)
	tr.policy = tr.policy.WithSleep(noSleep)
	tr.sleep = noSleep
	return tr
}

// inputCount extracts the number of numbered input lines from a request.
func inputCount(req openai.ChatCompletionRequest) int {
	user := req.Messages[1].Content
	return len(strings.Split(strings.TrimSpace(user), "\n"))
}

func echoTranslated(req openai.ChatCompletionRequest) (string, error) {
	n := inputCount(req)
	texts := make([]string, n)
	for i := range texts {
		texts[i] = "translated"
	}
	data, _ := json.Marshal(map[string][]string{"segments": texts})
	return string(data), nil
}

func makeSegments(texts ...string) []transcript.Segment {
	out := make([]transcript.Segment, 0, len(texts))
	for i, text := range texts {
		start := time.Duration(i) * time.Second
		out = append(out, transcript.NewSegment("Speaker 0", text, start, start+time.Second))
	}
	return out
}

func TestTranslateEmptyTranscript(t *testing.T) {
	client := &fakeChatClient{respond: func(openai.ChatCompletionRequest) (string, error) {
		t.Errorf("remote call made for empty transcript")
		return "", nil
	}}
	tr := testTranslator(client, DefaultConfig())

	out, err := tr.Translate(context.Background(), nil, "it")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if out != nil {
		t.Errorf("Translate(empty) = %v, want nil", out)
	}
}

func TestTranslatePreservesIdentityAndTiming(t *testing.T) {
	client := &fakeChatClient{respond: echoTranslated}
	tr := testTranslator(client, DefaultConfig())
	in := makeSegments("hello there", "how are you")

	out, err := tr.Translate(context.Background(), in, "it")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d segments, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].ID != in[i].ID {
			t.Errorf("segment %d: ID changed", i)
		}
		if out[i].StartTime != in[i].StartTime || out[i].EndTime != in[i].EndTime {
			t.Errorf("segment %d: timing changed", i)
		}
		if out[i].Speaker != in[i].Speaker {
			t.Errorf("segment %d: speaker changed", i)
		}
		if out[i].Text != "translated" {
			t.Errorf("segment %d: Text = %q, want translated", i, out[i].Text)
		}
	}
	// The input is never mutated.
	if in[0].Text != "hello there" {
		t.Errorf("input segment mutated: %q", in[0].Text)
	}
}

func TestTranslateCountMismatchTruncates(t *testing.T) {
	client := &fakeChatClient{respond: func(req openai.ChatCompletionRequest) (string, error) {
		// One output for three inputs.
		return `{"segments": ["tradotto"]}`, nil
	}}
	tr := testTranslator(client, DefaultConfig())
	in := makeSegments("one", "two", "three")

	out, err := tr.Translate(context.Background(), in, "it")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d segments, want 3", len(out))
	}
	if out[0].Text != "tradotto" {
		t.Errorf("segment 0: Text = %q, want tradotto", out[0].Text)
	}
	// The uncovered tail keeps its original text instead of being lost.
	if out[1].Text != "two" || out[2].Text != "three" {
		t.Errorf("tail segments = %q, %q, want originals", out[1].Text, out[2].Text)
	}
}

func TestTranslateTimeoutFallsBackToMicroChunks(t *testing.T) {
	client := &fakeChatClient{respond: func(req openai.ChatCompletionRequest) (string, error) {
		if inputCount(req) > 1 {
			return "", context.DeadlineExceeded
		}
		return `{"segments": ["mikro"]}`, nil
	}}
	tr := testTranslator(client, DefaultConfig())
	in := makeSegments("alpha", "beta")

	out, err := tr.Translate(context.Background(), in, "de")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d segments, want 2", len(out))
	}
	for i := range out {
		if out[i].Text != "mikro" {
			t.Errorf("segment %d: Text = %q, want mikro", i, out[i].Text)
		}
		if out[i].ID != in[i].ID {
			t.Errorf("segment %d: ID changed through fallback", i)
		}
	}
	// 3 failed attempts on the full chunk, then one request per segment.
	if client.calls() != 5 {
		t.Errorf("client called %d times, want 5", client.calls())
	}
}

func TestTranslateMicroChunkFailureKeepsOriginal(t *testing.T) {
	client := &fakeChatClient{respond: func(req openai.ChatCompletionRequest) (string, error) {
		if inputCount(req) > 1 {
			return "", context.DeadlineExceeded
		}
		if strings.Contains(req.Messages[1].Content, "beta") {
			return "", context.DeadlineExceeded
		}
		return `{"segments": ["ok"]}`, nil
	}}
	tr := testTranslator(client, DefaultConfig())
	in := makeSegments("alpha", "beta")

	out, err := tr.Translate(context.Background(), in, "de")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if out[0].Text != "ok" {
		t.Errorf("segment 0: Text = %q, want ok", out[0].Text)
	}
	// A segment that fails even as a micro-chunk keeps its original
	// text; the transcript never loses a portion.
	if out[1].Text != "beta" {
		t.Errorf("segment 1: Text = %q, want original beta", out[1].Text)
	}
}

func TestTranslateMalformedResponseFails(t *testing.T) {
	client := &fakeChatClient{respond: func(openai.ChatCompletionRequest) (string, error) {
		return `{"wrong": true}`, nil
	}}
	tr := testTranslator(client, DefaultConfig())
	in := makeSegments("alpha")

	if _, err := tr.Translate(context.Background(), in, "de"); err == nil {
		t.Errorf("Translate() accepted a response without segments array")
	}
}

func TestTranslateCancellationAborts(t *testing.T) {
	client := &fakeChatClient{respond: func(openai.ChatCompletionRequest) (string, error) {
		return "", context.Canceled
	}}
	tr := testTranslator(client, DefaultConfig())
	in := makeSegments("alpha")

	_, err := tr.Translate(context.Background(), in, "de")
	if err == nil {
		t.Fatalf("Translate() = nil error on cancellation")
	}
	if client.calls() != 1 {
		t.Errorf("client called %d times, want 1 (no retry on cancellation)", client.calls())
	}
}

func TestTranslateSequentialChunkSpacing(t *testing.T) {
	var delays []time.Duration
	client := &fakeChatClient{respond: echoTranslated}
	tr := New(client, Config{MaxChunkChars: 12})
	tr.policy = tr.policy.WithSleep(noSleep)
	tr.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	in := makeSegments("aaaaaaaaaa", "bbbbbbbbbb", "cccccccccc")

	if _, err := tr.Translate(context.Background(), in, "fr"); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	// Three single-segment chunks, spaced by the inter-chunk delay.
	if len(delays) != 2 {
		t.Errorf("slept %d times between chunks, want 2", len(delays))
	}
}

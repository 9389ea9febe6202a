// Package testutil holds shared fakes and fixtures for coordinator and
// pipeline tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/memovox/memovox/internal/capture"
	"github.com/memovox/memovox/internal/config"
	"github.com/memovox/memovox/internal/recorder"
	"github.com/memovox/memovox/internal/transcript"
)

// TestConfig returns a valid configuration for testing
func TestConfig() *config.Config {
	return &config.Config{
		Recording: config.RecordingConfig{
			SampleRate:        16000,
			Channels:          1,
			FramesPerBuffer:   1024,
			ChannelBufferSize: 30,
		},
		Transcription: config.TranscriptionConfig{
			Provider:   "deepgram",
			Language:   "en",
			Model:      "nova-3",
			BatchModel: "whisper-1",
		},
		Session: config.SessionConfig{
			AutoResumeEnabled:     true,
			MaxAutoResumeAttempts: 3,
		},
		Summarization: config.SummarizationConfig{
			Model:            "gpt-4o-mini",
			Locale:           "en",
			MaxConcurrency:   4,
			RequestTimeout:   2 * time.Minute,
			MaxChunkDuration: 8 * time.Minute,
			OverlapDuration:  15 * time.Second,
		},
		Translation: config.TranslationConfig{
			Model:         "gpt-4o-mini",
			MaxChunkChars: 3000,
		},
		Notifications: config.NotificationsConfig{
			Enabled: true,
			Type:    "log",
		},
		Providers: map[string]config.ProviderConfig{
			"deepgram": {APIKey: "test-deepgram-key"},
			"openai":   {APIKey: "test-openai-key"},
		},
	}
}

// Segments builds a deterministic transcript: count segments, each
// spanning span, back to back from zero.
func Segments(count int, span time.Duration, text string) []transcript.Segment {
	out := make([]transcript.Segment, 0, count)
	for i := 0; i < count; i++ {
		start := time.Duration(i) * span
		out = append(out, transcript.NewSegment("Speaker 0", text, start, start+span))
	}
	return out
}

// FakeEngine implements session.CaptureEngine without hardware.
type FakeEngine struct {
	StartError error

	mu      sync.Mutex
	Started bool
	Stopped bool
	sinks   map[capture.SinkKind]capture.SinkFunc
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{sinks: make(map[capture.SinkKind]capture.SinkFunc)}
}

func (e *FakeEngine) Start() error {
	if e.StartError != nil {
		return e.StartError
	}
	e.mu.Lock()
	e.Started = true
	e.Stopped = false
	e.mu.Unlock()
	return nil
}

func (e *FakeEngine) Stop() {
	e.mu.Lock()
	e.Stopped = true
	e.mu.Unlock()
}

func (e *FakeEngine) RegisterSink(kind capture.SinkKind, fn capture.SinkFunc) {
	e.mu.Lock()
	e.sinks[kind] = fn
	e.mu.Unlock()
}

func (e *FakeEngine) UnregisterSink(kind capture.SinkKind) {
	e.mu.Lock()
	delete(e.sinks, kind)
	e.mu.Unlock()
}

// Push delivers one buffer to the registered sink of the given kind.
func (e *FakeEngine) Push(kind capture.SinkKind, data []byte) bool {
	e.mu.Lock()
	fn, ok := e.sinks[kind]
	e.mu.Unlock()
	if !ok {
		return false
	}
	fn(capture.Buffer{Data: data, Frames: len(data) / 2, Timestamp: time.Now()})
	return true
}

func (e *FakeEngine) HasSink(kind capture.SinkKind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sinks[kind]
	return ok
}

// FakeRecorder implements session.AudioRecorder in memory.
type FakeRecorder struct {
	BeginError  error
	PauseError  error
	ResumeError error
	EndDuration time.Duration

	mu       sync.Mutex
	Active   bool
	Paused   bool
	Path     string
	Written  int
	last     time.Duration
	EndCalls int
}

func (r *FakeRecorder) Begin(path string) error {
	if r.BeginError != nil {
		return r.BeginError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Active = true
	r.Paused = false
	r.Path = path
	return nil
}

func (r *FakeRecorder) Write(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Active {
		return recorder.ErrNotActive
	}
	if !r.Paused {
		r.Written += len(data)
	}
	return nil
}

func (r *FakeRecorder) Pause() error {
	if r.PauseError != nil {
		return r.PauseError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Active {
		return recorder.ErrNotActive
	}
	r.Paused = true
	return nil
}

func (r *FakeRecorder) Resume() error {
	if r.ResumeError != nil {
		return r.ResumeError
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Active {
		return recorder.ErrNotActive
	}
	r.Paused = false
	return nil
}

func (r *FakeRecorder) End() (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndCalls++
	if !r.Active {
		return r.last, recorder.ErrNotActive
	}
	r.Active = false
	r.Paused = false
	r.last = r.EndDuration
	return r.EndDuration, nil
}

func (r *FakeRecorder) LastDuration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// FakeTranscriber implements session.Transcriber without a backend.
type FakeTranscriber struct {
	StartError error
	StopError  error

	mu       sync.Mutex
	running  bool
	Fed      int
	Segs     []transcript.Segment
	StopCount int
	Offset    time.Duration
}

// SetTimeOffset records the session time already elapsed before this
// transcriber starts; AddSegment applies it like the real backend does.
func (t *FakeTranscriber) SetTimeOffset(d time.Duration) {
	t.mu.Lock()
	t.Offset = d
	t.mu.Unlock()
}

func (t *FakeTranscriber) Start(ctx context.Context) error {
	if t.StartError != nil {
		return t.StartError
	}
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
	return nil
}

func (t *FakeTranscriber) Feed(data []byte) {
	t.mu.Lock()
	if t.running {
		t.Fed += len(data)
	}
	t.mu.Unlock()
}

func (t *FakeTranscriber) Stop() error {
	t.mu.Lock()
	t.running = false
	t.StopCount++
	t.mu.Unlock()
	return t.StopError
}

func (t *FakeTranscriber) Segments() []transcript.Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transcript.Segment, len(t.Segs))
	copy(out, t.Segs)
	return out
}

func (t *FakeTranscriber) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// AddSegment appends a finalized segment as a live backend would,
// rebasing its stream-relative timestamps onto session time.
func (t *FakeTranscriber) AddSegment(seg transcript.Segment) {
	t.mu.Lock()
	seg.StartTime += t.Offset
	seg.EndTime += t.Offset
	t.Segs = append(t.Segs, seg)
	t.mu.Unlock()
}

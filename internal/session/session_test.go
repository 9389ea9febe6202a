package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/memovox/memovox/internal/capture"
	"github.com/memovox/memovox/internal/gate"
	"github.com/memovox/memovox/internal/testutil"
	"github.com/memovox/memovox/internal/transcriber"
	"github.com/memovox/memovox/internal/transcript"
)

type harness struct {
	coordinator *Coordinator
	gate        *gate.Gate
	engine      *testutil.FakeEngine
	rec         *testutil.FakeRecorder

	// One fake per transcriber factory call: the coordinator builds a
	// fresh backend per start and per post-interruption restart.
	liveStartError error
	lives          []*testutil.FakeTranscriber
}

func newHarness(t *testing.T, config Config) *harness {
	t.Helper()

	h := &harness{
		gate:   gate.New(),
		engine: testutil.NewFakeEngine(),
		rec:    &testutil.FakeRecorder{EndDuration: 42 * time.Second},
	}
	h.coordinator = New(
		config,
		h.gate,
		h.rec,
		func(capture.PowerFunc) CaptureEngine { return h.engine },
		func(transcriber.UpdateFunc) (Transcriber, error) {
			ft := &testutil.FakeTranscriber{StartError: h.liveStartError}
			h.lives = append(h.lives, ft)
			return ft, nil
		},
		nil,
	)
	return h
}

// live returns the most recently built fake transcriber.
func (h *harness) live() *testutil.FakeTranscriber {
	if len(h.lives) == 0 {
		return nil
	}
	return h.lives[len(h.lives)-1]
}

func drainEvents(c *Coordinator) []Event {
	var out []Event
	for {
		select {
		case ev := <-c.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func hasEvent(events []Event, kind EventKind) bool {
	for _, ev := range events {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

func TestStartRecording(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.coordinator.StartRecording(ctx, "/tmp/meeting.wav"); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}

	if h.coordinator.Status() != Recording {
		t.Errorf("Status() = %s, want recording", h.coordinator.Status())
	}
	if !h.engine.Started {
		t.Errorf("capture engine not started")
	}
	if !h.engine.HasSink(capture.SinkRecording) {
		t.Errorf("recording sink not registered")
	}
	if h.engine.HasSink(capture.SinkTranscription) {
		t.Errorf("transcription sink registered without transcription")
	}
	sess := h.coordinator.Session()
	if sess == nil {
		t.Fatalf("Session() = nil, want active session")
	}
	if !sess.IsActive || sess.RecordingPath != "/tmp/meeting.wav" {
		t.Errorf("Session() = %+v, want active session at /tmp/meeting.wav", sess)
	}
	if sess.TranscriptionEnabled {
		t.Errorf("TranscriptionEnabled = true, want false")
	}
}

func TestStartRecordingWithTranscription(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.coordinator.StartRecordingWithTranscription(ctx, "/tmp/m.wav"); err != nil {
		t.Fatalf("StartRecordingWithTranscription() error = %v", err)
	}

	if !h.live().IsRunning() {
		t.Errorf("transcriber not running")
	}
	if !h.engine.HasSink(capture.SinkTranscription) {
		t.Errorf("transcription sink not registered")
	}

	// Captured audio reaches both sinks.
	data := make([]byte, 2048)
	h.engine.Push(capture.SinkRecording, data)
	h.engine.Push(capture.SinkTranscription, data)
	if h.rec.Written != 2048 {
		t.Errorf("recorder received %d bytes, want 2048", h.rec.Written)
	}
	if h.live().Fed != 2048 {
		t.Errorf("transcriber received %d bytes, want 2048", h.live().Fed)
	}
}

func TestStartRecordingGateConflict(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	// Another owner already holds the capture gate.
	h.gate.TryAcquireStandaloneTranscript()

	err := h.coordinator.StartRecording(context.Background(), "/tmp/m.wav")
	if !errors.Is(err, gate.ErrConflict) {
		t.Fatalf("StartRecording() = %v, want ErrConflict", err)
	}

	// Denial must be all-or-nothing: the hardware was never touched.
	if h.engine.Started {
		t.Errorf("engine started despite gate denial")
	}
	if h.rec.Active {
		t.Errorf("recorder opened despite gate denial")
	}
	if h.coordinator.Status() != Idle {
		t.Errorf("Status() = %s, want idle", h.coordinator.Status())
	}
}

func TestStartRecordingEngineFailureUnwinds(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.engine.StartError = capture.ErrHardwareUnavailable

	err := h.coordinator.StartRecording(context.Background(), "/tmp/m.wav")
	if !errors.Is(err, capture.ErrHardwareUnavailable) {
		t.Fatalf("StartRecording() = %v, want ErrHardwareUnavailable", err)
	}

	if h.rec.Active {
		t.Errorf("recorder left open after engine failure")
	}
	if h.gate.IsBusy() {
		t.Errorf("gate left held after engine failure")
	}

	// A clean retry must succeed once the hardware is back.
	h.engine.StartError = nil
	if err := h.coordinator.StartRecording(context.Background(), "/tmp/m.wav"); err != nil {
		t.Errorf("retry StartRecording() error = %v", err)
	}
}

func TestStartRecordingTranscriberFailureUnwinds(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.liveStartError = transcriber.ErrRecognizerUnavailable

	err := h.coordinator.StartRecordingWithTranscription(context.Background(), "/tmp/m.wav")
	if !errors.Is(err, transcriber.ErrRecognizerUnavailable) {
		t.Fatalf("StartRecordingWithTranscription() = %v, want ErrRecognizerUnavailable", err)
	}
	if h.engine.Started && !h.engine.Stopped {
		t.Errorf("engine left running after transcriber failure")
	}
	if h.gate.IsBusy() {
		t.Errorf("gate left held after transcriber failure")
	}
}

func TestPauseResumeKeepsTranscriptionRunning(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.coordinator.StartRecordingWithTranscription(ctx, "/tmp/m.wav"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.coordinator.PauseRecording(); err != nil {
		t.Fatalf("PauseRecording() error = %v", err)
	}

	if h.coordinator.Status() != Paused {
		t.Errorf("Status() = %s, want paused", h.coordinator.Status())
	}
	if !h.rec.Paused {
		t.Errorf("recorder not paused")
	}
	// Pausing the recording does not pause transcription.
	if !h.live().IsRunning() {
		t.Errorf("transcriber stopped by recording pause")
	}

	if err := h.coordinator.ResumeRecording(); err != nil {
		t.Fatalf("ResumeRecording() error = %v", err)
	}
	if h.coordinator.Status() != Recording {
		t.Errorf("Status() = %s after resume, want recording", h.coordinator.Status())
	}

	events := drainEvents(h.coordinator)
	if !hasEvent(events, EventRecordingPaused) || !hasEvent(events, EventRecordingResumed) {
		t.Errorf("pause/resume events missing: %+v", events)
	}
}

func TestPauseResumeStateErrors(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.coordinator.PauseRecording(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("PauseRecording() idle = %v, want ErrNotRecording", err)
	}
	if err := h.coordinator.ResumeRecording(); !errors.Is(err, ErrNotPaused) {
		t.Errorf("ResumeRecording() idle = %v, want ErrNotPaused", err)
	}
}

func TestStopRecordingIdempotent(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.coordinator.StartRecording(ctx, "/tmp/m.wav"); err != nil {
		t.Fatalf("start: %v", err)
	}

	duration, err := h.coordinator.StopRecording()
	if err != nil {
		t.Fatalf("StopRecording() error = %v", err)
	}
	if duration != 42*time.Second {
		t.Errorf("StopRecording() duration = %v, want 42s", duration)
	}
	if !h.engine.Stopped {
		t.Errorf("engine not stopped")
	}
	if h.gate.IsBusy() {
		t.Errorf("gate still held after stop")
	}

	// Second stop: no-op, same duration, sentinel error.
	duration, err = h.coordinator.StopRecording()
	if !errors.Is(err, ErrAlreadyStopped) {
		t.Errorf("second StopRecording() = %v, want ErrAlreadyStopped", err)
	}
	if duration != 42*time.Second {
		t.Errorf("second StopRecording() duration = %v, want 42s", duration)
	}
	if h.rec.EndCalls != 1 {
		t.Errorf("recorder End() called %d times, want 1", h.rec.EndCalls)
	}
}

func TestInterruptionCachesTranscriptAndResumes(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.coordinator.StartRecordingWithTranscription(ctx, "/tmp/m.wav"); err != nil {
		t.Fatalf("start: %v", err)
	}
	seg := transcript.NewSegment("Speaker 0", "before the call", time.Second, 3*time.Second)
	h.live().AddSegment(seg)

	h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{Kind: ExternalInterruptionBegan})

	if h.coordinator.Status() != Interrupted {
		t.Fatalf("Status() = %s, want interrupted", h.coordinator.Status())
	}
	if !h.rec.Paused {
		t.Errorf("recorder not paused on interruption")
	}
	if h.live().StopCount != 1 {
		t.Errorf("transcriber Stop() called %d times, want 1", h.live().StopCount)
	}
	if h.engine.HasSink(capture.SinkTranscription) {
		t.Errorf("transcription sink still registered during interruption")
	}
	// The finalized transcript survives the backend teardown.
	got := h.coordinator.Transcript()
	if len(got) != 1 || got[0].ID != seg.ID {
		t.Errorf("Transcript() = %v, want cached segment", got)
	}

	st := h.coordinator.Interruption()
	if !st.WasRecordingActive || !st.WasTranscriptionActive {
		t.Errorf("Interruption() = %+v, want both restoration flags set", st)
	}

	h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{
		Kind: ExternalInterruptionEnded, ShouldResume: true,
	})

	if h.coordinator.Status() != Recording {
		t.Errorf("Status() = %s after resume, want recording", h.coordinator.Status())
	}
	if h.rec.Paused {
		t.Errorf("recorder still paused after resume")
	}
	if !h.live().IsRunning() {
		t.Errorf("transcriber not restarted after resume")
	}
	if h.coordinator.Interruption().AutoResumeAttempts != 1 {
		t.Errorf("AutoResumeAttempts = %d, want 1", h.coordinator.Interruption().AutoResumeAttempts)
	}
	// Cached segments remain part of the transcript after restoration.
	got = h.coordinator.Transcript()
	if len(got) != 1 || got[0].ID != seg.ID {
		t.Errorf("Transcript() after resume = %v, want cached segment", got)
	}

	events := drainEvents(h.coordinator)
	if !hasEvent(events, EventInterruptionBegan) {
		t.Errorf("interruptionBegan event missing")
	}
	if !hasEvent(events, EventTranscriptCacheRestored) {
		t.Errorf("transcriptCacheRestored event missing")
	}
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestResumeRebasesTranscriptTimestamps(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	clock := newFakeClock()
	h.coordinator.now = clock.Now
	ctx := context.Background()

	if err := h.coordinator.StartRecordingWithTranscription(ctx, "/tmp/m.wav"); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.live().AddSegment(transcript.NewSegment("Speaker 0", "before", 10*time.Second, 12*time.Second))

	h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{Kind: ExternalInterruptionBegan})
	clock.Advance(90 * time.Second)
	h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{
		Kind: ExternalInterruptionEnded, ShouldResume: true,
	})

	// The replacement transcriber is told how much session time passed,
	// so its zero-based stream timestamps land after the cached speech.
	if h.live().Offset != 90*time.Second {
		t.Fatalf("transcriber offset = %v, want 1m30s", h.live().Offset)
	}
	h.live().AddSegment(transcript.NewSegment("Speaker 0", "after", time.Second, 3*time.Second))

	got := h.coordinator.Transcript()
	if len(got) != 2 {
		t.Fatalf("Transcript() returned %d segments, want 2", len(got))
	}
	if got[0].Text != "before" || got[1].Text != "after" {
		t.Errorf("transcript order = [%q, %q], want pre-interruption speech first", got[0].Text, got[1].Text)
	}
	if got[1].StartTime != 91*time.Second || got[1].EndTime != 93*time.Second {
		t.Errorf("post-resume timing = [%v, %v], want [1m31s, 1m33s]", got[1].StartTime, got[1].EndTime)
	}
}

func TestInterruptionPauseFailureEmitsError(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.coordinator.StartRecording(ctx, "/tmp/m.wav"); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.rec.PauseError = errors.New("device wedged")

	h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{Kind: ExternalInterruptionBegan})

	if !hasEvent(drainEvents(h.coordinator), EventError) {
		t.Errorf("no error event for a failed pause on interruption")
	}
}

func TestInterruptionNoResumeRequested(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.coordinator.StartRecording(ctx, "/tmp/m.wav"); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{Kind: ExternalInterruptionBegan})
	h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{
		Kind: ExternalInterruptionEnded, ShouldResume: false,
	})

	// Without a resume hint the session stays interrupted, waiting for
	// the user.
	if h.coordinator.Status() != Interrupted {
		t.Errorf("Status() = %s, want interrupted", h.coordinator.Status())
	}
	if h.coordinator.Interruption().AutoResumeAttempts != 0 {
		t.Errorf("AutoResumeAttempts = %d, want 0", h.coordinator.Interruption().AutoResumeAttempts)
	}
}

func TestAutoResumeAttemptBudget(t *testing.T) {
	h := newHarness(t, Config{AutoResumeEnabled: true, MaxAutoResumeAttempts: 3})
	ctx := context.Background()

	if err := h.coordinator.StartRecording(ctx, "/tmp/m.wav"); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{Kind: ExternalInterruptionBegan})

	// Every restoration attempt fails at the recorder.
	h.rec.ResumeError = errors.New("device busy")

	for i := 0; i < 5; i++ {
		h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{
			Kind: ExternalInterruptionEnded, ShouldResume: true,
		})
	}

	// The budget caps attempts; extra end events consume nothing.
	if got := h.coordinator.Interruption().AutoResumeAttempts; got != 3 {
		t.Errorf("AutoResumeAttempts = %d, want 3", got)
	}
	if h.coordinator.Status() != Interrupted {
		t.Errorf("Status() = %s, want interrupted", h.coordinator.Status())
	}

	events := drainEvents(h.coordinator)
	failures := 0
	for _, ev := range events {
		if ev.Kind == EventAutoResumeFailed {
			failures++
			if ev.Attempt < 1 || ev.Attempt > 3 {
				t.Errorf("failure event attempt = %d, want 1..3", ev.Attempt)
			}
		}
	}
	if failures != 3 {
		t.Errorf("got %d autoResumeAttemptFailed events, want 3", failures)
	}

	// The manual escape hatch bypasses the exhausted budget.
	h.rec.ResumeError = nil
	if err := h.coordinator.ForceResumeAfterInterruption(ctx); err != nil {
		t.Fatalf("ForceResumeAfterInterruption() error = %v", err)
	}
	if h.coordinator.Status() != Recording {
		t.Errorf("Status() = %s after force resume, want recording", h.coordinator.Status())
	}
}

func TestForceResumeOutsideInterruption(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	err := h.coordinator.ForceResumeAfterInterruption(context.Background())
	if !errors.Is(err, ErrNotInterrupted) {
		t.Errorf("ForceResumeAfterInterruption() idle = %v, want ErrNotInterrupted", err)
	}
}

func TestRouteChangePausesWithoutBudget(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.coordinator.StartRecording(ctx, "/tmp/m.wav"); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{Kind: ExternalRouteDeviceUnavailable})

	// A disappearing device pauses. It is not an interruption: no
	// shadow state, no attempt budget consumed.
	if h.coordinator.Status() != Paused {
		t.Fatalf("Status() = %s, want paused", h.coordinator.Status())
	}
	if h.coordinator.Interruption().AutoResumeAttempts != 0 {
		t.Errorf("route change consumed auto-resume attempts")
	}

	// Recovery is the ordinary resume path.
	if err := h.coordinator.ResumeRecording(); err != nil {
		t.Errorf("ResumeRecording() after route change = %v", err)
	}
}

func TestInterruptionIgnoredWhenIdle(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{Kind: ExternalInterruptionBegan})

	if h.coordinator.Status() != Idle {
		t.Errorf("Status() = %s, want idle", h.coordinator.Status())
	}
}

func TestStopWhileInterrupted(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.coordinator.StartRecordingWithTranscription(ctx, "/tmp/m.wav"); err != nil {
		t.Fatalf("start: %v", err)
	}
	h.coordinator.HandleExternalAudioEvent(ctx, ExternalAudioEvent{Kind: ExternalInterruptionBegan})

	// Stop must work from the interrupted state and release everything.
	if _, err := h.coordinator.StopRecording(); err != nil {
		t.Fatalf("StopRecording() while interrupted = %v", err)
	}
	if h.coordinator.Status() != Idle {
		t.Errorf("Status() = %s, want idle", h.coordinator.Status())
	}
	if h.gate.IsBusy() {
		t.Errorf("gate still held")
	}
}

func TestStandaloneTranscription(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.coordinator.StartStandaloneTranscription(ctx); err != nil {
		t.Fatalf("StartStandaloneTranscription() error = %v", err)
	}

	// A recording session cannot start while standalone transcription
	// holds the gate.
	if err := h.coordinator.StartRecording(ctx, "/tmp/m.wav"); !errors.Is(err, gate.ErrConflict) {
		t.Errorf("StartRecording() during standalone = %v, want ErrConflict", err)
	}

	seg := transcript.NewSegment("Speaker 0", "standalone", 0, time.Second)
	h.live().AddSegment(seg)

	segments, err := h.coordinator.StopStandaloneTranscription()
	if err != nil {
		t.Fatalf("StopStandaloneTranscription() error = %v", err)
	}
	if len(segments) != 1 || segments[0].ID != seg.ID {
		t.Errorf("StopStandaloneTranscription() = %v, want the finalized segment", segments)
	}
	if h.gate.IsBusy() {
		t.Errorf("gate still held after standalone stop")
	}

	// The slot is free again.
	if err := h.coordinator.StartRecording(ctx, "/tmp/m.wav"); err != nil {
		t.Errorf("StartRecording() after standalone stop = %v", err)
	}
}

// Package session coordinates the unified audio capture, recording and
// live transcription lifecycle behind one state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/memovox/memovox/internal/capture"
	"github.com/memovox/memovox/internal/gate"
	"github.com/memovox/memovox/internal/notify"
	"github.com/memovox/memovox/internal/recorder"
	"github.com/memovox/memovox/internal/transcriber"
	"github.com/memovox/memovox/internal/transcript"
)

type Status string

const (
	Idle        Status = "idle"
	Recording   Status = "recording"
	Paused      Status = "paused"
	Interrupted Status = "interrupted"
)

var (
	// ErrAlreadyStopped signals a redundant StopRecording. The last
	// known duration is still returned alongside it.
	ErrAlreadyStopped = errors.New("recording already stopped")
	// ErrNotPaused signals ResumeRecording outside Paused.
	ErrNotPaused = errors.New("recording not paused")
	// ErrNotRecording signals PauseRecording outside Recording.
	ErrNotRecording = errors.New("no active recording")
	// ErrNotInterrupted signals a resume attempt outside Interrupted.
	ErrNotInterrupted = errors.New("session not interrupted")
)

// AudioSession is the single live capture session. At most one exists
// per coordinator, and the gate keeps coordinators from overlapping.
type AudioSession struct {
	RecordingPath        string
	StartedAt            time.Time
	IsActive             bool
	IsPaused             bool
	TranscriptionEnabled bool
}

// InterruptionState tracks restoration bookkeeping across one
// interruption begin/end cycle.
type InterruptionState struct {
	WasRecordingActive     bool
	WasTranscriptionActive bool
	AutoResumeAttempts     int
	MaxAutoResumeAttempts  int
	AutoResumeEnabled      bool
}

// CaptureEngine is the hardware tap owner. Only the coordinator may call
// its sink registration methods.
type CaptureEngine interface {
	Start() error
	Stop()
	RegisterSink(kind capture.SinkKind, fn capture.SinkFunc)
	UnregisterSink(kind capture.SinkKind)
}

// AudioRecorder persists the captured audio stream.
type AudioRecorder interface {
	Begin(path string) error
	Write(data []byte) error
	Pause() error
	Resume() error
	End() (time.Duration, error)
	LastDuration() time.Duration
}

// Transcriber is a live recognition task bound to the session. Segments
// carry session-relative timestamps; SetTimeOffset, called before Start,
// tells a transcriber created mid-session how much session time already
// passed.
type Transcriber interface {
	SetTimeOffset(d time.Duration)
	Start(ctx context.Context) error
	Feed(data []byte)
	Stop() error
	Segments() []transcript.Segment
	IsRunning() bool
}

type Config struct {
	AutoResumeEnabled     bool
	MaxAutoResumeAttempts int
	EventBufferSize       int
}

func DefaultConfig() Config {
	return Config{
		AutoResumeEnabled:     true,
		MaxAutoResumeAttempts: 3,
		EventBufferSize:       64,
	}
}

// Coordinator owns the start/pause/resume/stop state machine and
// arbitrates all access to the capture engine. Constructed explicitly at
// the composition root; tests build their own instance per case.
type Coordinator struct {
	config   Config
	gate     *gate.Gate
	notifier notify.Notifier

	newEngine      func(capture.PowerFunc) CaptureEngine
	newTranscriber func(transcriber.UpdateFunc) (Transcriber, error)
	rec            AudioRecorder
	now            func() time.Time

	events chan Event

	mu           sync.Mutex
	status       Status
	sess         *AudioSession
	engine       CaptureEngine
	live         Transcriber
	interruption InterruptionState
	cached       []transcript.Segment
	lastDuration time.Duration

	// standalone live transcription, mutually exclusive with recording
	standalone Transcriber
}

// New wires a coordinator from its collaborators. Pass nil for notifier
// to disable lifecycle pings.
func New(
	config Config,
	g *gate.Gate,
	rec AudioRecorder,
	newEngine func(capture.PowerFunc) CaptureEngine,
	newTranscriber func(transcriber.UpdateFunc) (Transcriber, error),
	notifier notify.Notifier,
) *Coordinator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if config.EventBufferSize <= 0 {
		config.EventBufferSize = DefaultConfig().EventBufferSize
	}
	return &Coordinator{
		config:         config,
		gate:           g,
		rec:            rec,
		newEngine:      newEngine,
		newTranscriber: newTranscriber,
		notifier:       notifier,
		now:            time.Now,
		events:         make(chan Event, config.EventBufferSize),
		status:         Idle,
	}
}

// NewDefault builds a coordinator on the real capture engine, WAV
// recorder and configured streaming transcriber.
func NewDefault(config Config, g *gate.Gate, tc transcriber.Config, notifier notify.Notifier) *Coordinator {
	return New(
		config,
		g,
		recorder.NewDefault(),
		func(onPower capture.PowerFunc) CaptureEngine {
			return capture.NewDefault(onPower)
		},
		func(onUpdate transcriber.UpdateFunc) (Transcriber, error) {
			return transcriber.NewLive(tc, onUpdate), nil
		},
		notifier,
	)
}

// Events returns the coordinator's event stream. Consumers receive the
// same vocabulary the state machine transitions produce.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Status returns the current state machine state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Session returns a snapshot of the active audio session, or nil.
func (c *Coordinator) Session() *AudioSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	snapshot := *c.sess
	return &snapshot
}

// StartRecording begins a recording session without live transcription.
func (c *Coordinator) StartRecording(ctx context.Context, path string) error {
	return c.start(ctx, path, false)
}

// StartRecordingWithTranscription begins a recording session with the
// unified native transcription path enabled.
func (c *Coordinator) StartRecordingWithTranscription(ctx context.Context, path string) error {
	return c.start(ctx, path, true)
}

func (c *Coordinator) start(ctx context.Context, path string, transcription bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != Idle {
		return fmt.Errorf("start recording: session already %s", c.status)
	}

	// Gate approval comes first; on denial the hardware is never touched.
	if !c.gate.TryAcquireRecording() {
		return fmt.Errorf("start recording: %w", gate.ErrConflict)
	}

	if err := c.rec.Begin(path); err != nil {
		c.gate.ReleaseRecording()
		return fmt.Errorf("start recording: %w", err)
	}

	engine := c.newEngine(func(db float64) {
		c.emit(Event{Kind: EventPowerUpdate, Power: db})
	})
	if err := engine.Start(); err != nil {
		_, _ = c.rec.End()
		c.gate.ReleaseRecording()
		return fmt.Errorf("start recording: %w", err)
	}

	var live Transcriber
	if transcription {
		t, err := c.newTranscriber(func(text string, isFinal bool) {
			c.emit(Event{Kind: EventTranscriptUpdate, Text: text, IsFinal: isFinal})
		})
		if err == nil {
			err = t.Start(ctx)
		}
		if err != nil {
			engine.Stop()
			_, _ = c.rec.End()
			c.gate.ReleaseRecording()
			return fmt.Errorf("start transcription: %w", err)
		}
		live = t
	}

	engine.RegisterSink(capture.SinkRecording, func(buf capture.Buffer) {
		if err := c.rec.Write(buf.Data); err != nil {
			log.Printf("session: recorder write: %v", err)
		}
	})
	if live != nil {
		engine.RegisterSink(capture.SinkTranscription, func(buf capture.Buffer) {
			live.Feed(buf.Data)
		})
	}

	c.engine = engine
	c.live = live
	c.cached = nil
	c.status = Recording
	c.sess = &AudioSession{
		RecordingPath:        path,
		StartedAt:            c.now(),
		IsActive:             true,
		TranscriptionEnabled: transcription,
	}
	c.resetInterruption()

	go c.notifier.RecordingStarted()
	log.Printf("session: recording started, path=%s transcription=%v", path, transcription)
	return nil
}

// PauseRecording stops the recorder accepting buffers. Live
// transcription, if on, keeps running through a recording pause: users
// pause to take a breath, not to stop talking.
func (c *Coordinator) PauseRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != Recording {
		return ErrNotRecording
	}
	if err := c.rec.Pause(); err != nil {
		return fmt.Errorf("pause recording: %w", err)
	}
	c.status = Paused
	c.sess.IsPaused = true
	c.emit(Event{Kind: EventRecordingPaused})
	return nil
}

// ResumeRecording restarts the recorder after a pause.
func (c *Coordinator) ResumeRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != Paused {
		return ErrNotPaused
	}
	if err := c.rec.Resume(); err != nil {
		return fmt.Errorf("resume recording: %w", err)
	}
	c.status = Recording
	c.sess.IsPaused = false
	c.emit(Event{Kind: EventRecordingResumed})
	return nil
}

// StopRecording tears down both sinks, finalizes the audio file and
// returns the final duration. Teardown is unconditional: no error path
// leaves the hardware tap installed. A second call is a no-op returning
// the last known duration with ErrAlreadyStopped.
func (c *Coordinator) StopRecording() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == Idle {
		return c.lastDuration, ErrAlreadyStopped
	}

	c.teardownLocked()

	duration, err := c.rec.End()
	c.lastDuration = duration

	c.status = Idle
	if c.sess != nil {
		c.sess.IsActive = false
		c.sess.IsPaused = false
	}
	c.gate.ReleaseRecording()

	go c.notifier.RecordingStopped()
	log.Printf("session: recording stopped, duration=%v", duration)

	if err != nil && !errors.Is(err, recorder.ErrNotActive) {
		return duration, fmt.Errorf("stop recording: %w", err)
	}
	return duration, nil
}

// teardownLocked releases the transcriber and the hardware tap
// synchronously so a subsequent start is never rejected by a lingering
// resource. Must be called with mu held.
func (c *Coordinator) teardownLocked() {
	if c.engine != nil {
		c.engine.UnregisterSink(capture.SinkRecording)
		c.engine.UnregisterSink(capture.SinkTranscription)
	}
	if c.live != nil {
		c.cached = append(c.cached, c.live.Segments()...)
		if err := c.live.Stop(); err != nil {
			log.Printf("session: stop transcriber: %v", err)
			c.emit(Event{Kind: EventError, Err: fmt.Errorf("stop transcriber: %w", err)})
		}
		c.live = nil
	}
	if c.engine != nil {
		c.engine.Stop()
		c.engine = nil
	}
}

// Transcript returns the finalized transcript accumulated so far,
// including segments cached across interruptions, ordered by start time.
func (c *Coordinator) Transcript() []transcript.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]transcript.Segment, 0, len(c.cached))
	out = append(out, c.cached...)
	if c.live != nil {
		out = append(out, c.live.Segments()...)
	}
	transcript.SortByStart(out)
	return out
}

// Interruption returns a snapshot of the interruption bookkeeping.
func (c *Coordinator) Interruption() InterruptionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interruption
}

// HandleExternalAudioEvent feeds one platform audio event into the state
// machine. All implicit OS-notification transitions route through here.
func (c *Coordinator) HandleExternalAudioEvent(ctx context.Context, ev ExternalAudioEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case ExternalInterruptionBegan:
		c.handleInterruptionBeganLocked()
	case ExternalInterruptionEnded:
		c.handleInterruptionEndedLocked(ctx, ev.ShouldResume)
	case ExternalRouteDeviceUnavailable:
		c.handleRouteChangeLocked()
	default:
		log.Printf("session: unknown external audio event: %s", ev.Kind)
	}
}

func (c *Coordinator) handleInterruptionBeganLocked() {
	if c.status != Recording && c.status != Paused {
		return
	}

	c.interruption = InterruptionState{
		WasRecordingActive:     c.status == Recording,
		WasTranscriptionActive: c.live != nil && c.live.IsRunning(),
		MaxAutoResumeAttempts:  c.config.MaxAutoResumeAttempts,
		AutoResumeEnabled:      c.config.AutoResumeEnabled,
	}

	// Cache the transcript before the backend task is cancelled so
	// nothing finalized so far is lost.
	if c.live != nil {
		c.cached = append(c.cached, c.live.Segments()...)
		if c.engine != nil {
			c.engine.UnregisterSink(capture.SinkTranscription)
		}
		if err := c.live.Stop(); err != nil {
			log.Printf("session: stop transcriber on interruption: %v", err)
			c.emit(Event{Kind: EventError, Err: fmt.Errorf("stop transcriber on interruption: %w", err)})
		}
		c.live = nil
	}
	if err := c.rec.Pause(); err != nil {
		log.Printf("session: pause recorder on interruption: %v", err)
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("pause recorder on interruption: %w", err)})
	}

	c.status = Interrupted
	c.emit(Event{Kind: EventInterruptionBegan})
	log.Printf("session: interrupted (recording=%v transcription=%v)",
		c.interruption.WasRecordingActive, c.interruption.WasTranscriptionActive)
}

func (c *Coordinator) handleInterruptionEndedLocked(ctx context.Context, shouldResume bool) {
	if c.status != Interrupted {
		return
	}
	if !shouldResume || !c.interruption.AutoResumeEnabled {
		log.Printf("session: interruption ended, auto-resume not requested")
		return
	}
	if c.interruption.AutoResumeAttempts >= c.interruption.MaxAutoResumeAttempts {
		log.Printf("session: auto-resume attempts exhausted (%d)", c.interruption.AutoResumeAttempts)
		return
	}

	c.interruption.AutoResumeAttempts++
	if err := c.resumeFromInterruptionLocked(ctx); err != nil {
		c.emit(Event{
			Kind:    EventAutoResumeFailed,
			Err:     err,
			Attempt: c.interruption.AutoResumeAttempts,
		})
		log.Printf("session: auto-resume attempt %d failed: %v", c.interruption.AutoResumeAttempts, err)
	}
}

// ForceResumeAfterInterruption is the manual escape hatch bypassing the
// auto-resume attempt cap.
func (c *Coordinator) ForceResumeAfterInterruption(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != Interrupted {
		return ErrNotInterrupted
	}
	return c.resumeFromInterruptionLocked(ctx)
}

func (c *Coordinator) resumeFromInterruptionLocked(ctx context.Context) error {
	if c.interruption.WasRecordingActive {
		if err := c.rec.Resume(); err != nil {
			return fmt.Errorf("resume recorder: %w", err)
		}
	}

	if c.interruption.WasTranscriptionActive {
		t, err := c.newTranscriber(func(text string, isFinal bool) {
			c.emit(Event{Kind: EventTranscriptUpdate, Text: text, IsFinal: isFinal})
		})
		if err == nil {
			// The replacement backend's stream clock starts at zero;
			// anchor its segments to elapsed session time so they sort
			// after everything cached before the interruption.
			t.SetTimeOffset(c.now().Sub(c.sess.StartedAt))
			err = t.Start(ctx)
		}
		if err != nil {
			if c.interruption.WasRecordingActive {
				_ = c.rec.Pause()
			}
			return fmt.Errorf("restart transcription: %w", err)
		}
		c.live = t
		if c.engine != nil {
			c.engine.RegisterSink(capture.SinkTranscription, func(buf capture.Buffer) {
				t.Feed(buf.Data)
			})
		}
		c.emit(Event{Kind: EventTranscriptCacheRestored})
	}

	if c.interruption.WasRecordingActive {
		c.status = Recording
		c.sess.IsPaused = false
		c.emit(Event{Kind: EventRecordingResumed})
	} else {
		c.status = Paused
	}
	log.Printf("session: resumed after interruption")
	return nil
}

// handleRouteChangeLocked treats a disappearing input device as an
// interruption for the recorder only: it pauses without stopping and
// without touching the auto-resume attempt budget.
func (c *Coordinator) handleRouteChangeLocked() {
	if c.status != Recording {
		return
	}
	if err := c.rec.Pause(); err != nil {
		log.Printf("session: pause recorder on route change: %v", err)
		c.emit(Event{Kind: EventError, Err: fmt.Errorf("pause recorder on route change: %w", err)})
		return
	}
	c.status = Paused
	c.sess.IsPaused = true
	c.emit(Event{Kind: EventRecordingPaused})
	log.Printf("session: input device unavailable, recording paused")
}

// StartStandaloneTranscription runs live transcription without a
// recording session. Denied while a recording session holds the gate.
func (c *Coordinator) StartStandaloneTranscription(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.standalone != nil {
		return fmt.Errorf("start transcription: session already active")
	}
	if !c.gate.TryAcquireStandaloneTranscript() {
		return fmt.Errorf("start transcription: %w", gate.ErrConflict)
	}

	t, err := c.newTranscriber(func(text string, isFinal bool) {
		c.emit(Event{Kind: EventTranscriptUpdate, Text: text, IsFinal: isFinal})
	})
	if err == nil {
		err = t.Start(ctx)
	}
	if err != nil {
		c.gate.ReleaseStandaloneTranscript()
		return fmt.Errorf("start transcription: %w", err)
	}

	engine := c.newEngine(func(db float64) {
		c.emit(Event{Kind: EventPowerUpdate, Power: db})
	})
	if err := engine.Start(); err != nil {
		_ = t.Stop()
		c.gate.ReleaseStandaloneTranscript()
		return fmt.Errorf("start transcription: %w", err)
	}
	engine.RegisterSink(capture.SinkTranscription, func(buf capture.Buffer) {
		t.Feed(buf.Data)
	})

	c.standalone = t
	c.engine = engine
	log.Printf("session: standalone transcription started")
	return nil
}

// StopStandaloneTranscription ends the standalone session and returns
// the finalized segments.
func (c *Coordinator) StopStandaloneTranscription() ([]transcript.Segment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.standalone == nil {
		return nil, fmt.Errorf("no standalone transcription active")
	}

	if c.engine != nil {
		c.engine.UnregisterSink(capture.SinkTranscription)
		c.engine.Stop()
		c.engine = nil
	}
	segments := c.standalone.Segments()
	err := c.standalone.Stop()
	c.standalone = nil
	c.gate.ReleaseStandaloneTranscript()

	transcript.SortByStart(segments)
	log.Printf("session: standalone transcription stopped, %d segments", len(segments))
	return segments, err
}

func (c *Coordinator) resetInterruption() {
	c.interruption = InterruptionState{
		MaxAutoResumeAttempts: c.config.MaxAutoResumeAttempts,
		AutoResumeEnabled:     c.config.AutoResumeEnabled,
	}
}

// emit publishes an event without ever blocking a transition.
func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Printf("session: event buffer full, dropped %s", ev.Kind)
	}
}

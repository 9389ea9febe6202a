package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/memovox/memovox/internal/transcript"
)

// ErrRecognizerUnavailable is returned when the streaming backend cannot
// be started for the configured provider or language.
var ErrRecognizerUnavailable = errors.New("recognizer unavailable")

// UpdateFunc receives every incremental transcript update. isFinal marks
// a stable segment boundary; finalized text is never mutated afterwards.
type UpdateFunc func(text string, isFinal bool)

// Live drives a streaming recognition backend from a live PCM feed and
// accumulates finalized transcript segments.
type Live struct {
	config     Config
	newAdapter func(Config) (StreamingAdapter, error)
	onUpdate   UpdateFunc

	restartDelay time.Duration
	now          func() time.Time

	mu        sync.Mutex
	adapter   StreamingAdapter
	started   bool
	restarted bool
	segments  []transcript.Segment

	// Adapters report timestamps relative to their own stream connection.
	// epoch is the wall clock of session time zero; base is added to the
	// current adapter's native timestamps to land them in session time.
	offset time.Duration
	epoch  time.Time
	base   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLive(config Config, onUpdate UpdateFunc) *Live {
	return &Live{
		config:       config,
		newAdapter:   NewStreamingAdapter,
		onUpdate:     onUpdate,
		restartDelay: RestartDelay,
		now:          time.Now,
	}
}

// SetTimeOffset shifts all reported timestamps by the session time that
// already elapsed before this transcriber starts. A session replacing
// its transcriber mid-flight sets this before Start; the fresh backend
// stream clock begins at zero regardless of how long the session has run.
func (l *Live) SetTimeOffset(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.offset = d
}

// Start opens the streaming recognition request and begins the long
// running consume task.
func (l *Live) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return fmt.Errorf("live transcriber already started")
	}

	adapter, err := l.newAdapter(l.config)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecognizerUnavailable, err)
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	if err := adapter.Start(l.ctx, l.config.Language); err != nil {
		l.cancel()
		return fmt.Errorf("%w: %v", ErrRecognizerUnavailable, err)
	}

	l.adapter = adapter
	l.started = true
	l.restarted = false
	l.segments = nil
	l.epoch = l.now().Add(-l.offset)
	l.base = l.offset

	l.wg.Add(1)
	go l.consumeLoop(adapter)
	return nil
}

// IsRunning reports whether a recognition task is active.
func (l *Live) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// Feed forwards a PCM buffer to the open recognition request. It is a
// no-op when the transcriber is not started.
func (l *Live) Feed(data []byte) {
	l.mu.Lock()
	adapter := l.adapter
	started := l.started
	l.mu.Unlock()

	if !started || adapter == nil {
		return
	}
	if err := adapter.SendChunk(data); err != nil {
		// The adapter handles reconnection itself; a failed send is not
		// fatal to the session.
		log.Printf("transcriber: send error: %v", err)
	}
}

// Stop ends the audio input, cancels the recognition task and releases
// backend resources. Safe to call when not started.
func (l *Live) Stop() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = false
	adapter := l.adapter
	l.adapter = nil
	cancel := l.cancel
	l.mu.Unlock()

	var err error
	if adapter != nil {
		finalizeCtx, finalizeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if ferr := adapter.Finalize(finalizeCtx); ferr != nil {
			log.Printf("transcriber: finalize: %v", ferr)
		}
		finalizeCancel()
		err = adapter.Close()
	}
	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
	return err
}

// Segments returns a snapshot of the finalized segments so far, ordered
// by start time.
func (l *Live) Segments() []transcript.Segment {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]transcript.Segment, len(l.segments))
	copy(out, l.segments)
	transcript.SortByStart(out)
	return out
}

func (l *Live) consumeLoop(adapter StreamingAdapter) {
	defer l.wg.Done()

	resultsCh := adapter.Results()
	for {
		select {
		case <-l.ctx.Done():
			return
		case result, ok := <-resultsCh:
			if !ok {
				return
			}
			if result.Error != nil {
				if IsFatalStreamError(result.Error) {
					// Deliberate cancellation of the backend stream;
					// never auto-restart.
					log.Printf("transcriber: stream closed: %v", result.Error)
					return
				}
				log.Printf("transcriber: recoverable error: %v", result.Error)
				if next := l.tryRestart(); next != nil {
					resultsCh = next
				}
				continue
			}
			l.handleResult(result)
		}
	}
}

// tryRestart performs the single automatic restart after a recoverable
// backend failure. Returns the new results channel, or nil when no
// restart happened.
func (l *Live) tryRestart() <-chan Result {
	l.mu.Lock()
	if !l.started || l.restarted {
		l.mu.Unlock()
		return nil
	}
	l.restarted = true
	l.mu.Unlock()

	select {
	case <-l.ctx.Done():
		return nil
	case <-time.After(l.restartDelay):
	}

	adapter, err := l.newAdapter(l.config)
	if err != nil {
		log.Printf("transcriber: restart failed: %v", err)
		return nil
	}
	if err := adapter.Start(l.ctx, l.config.Language); err != nil {
		log.Printf("transcriber: restart failed: %v", err)
		return nil
	}

	l.mu.Lock()
	old := l.adapter
	l.adapter = adapter
	// The replacement stream's clock restarts at zero; rebase it onto
	// the session time that has elapsed so far.
	l.base = l.now().Sub(l.epoch)
	l.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	log.Printf("transcriber: backend restarted after transient failure")
	return adapter.Results()
}

func (l *Live) handleResult(result Result) {
	if result.Text == "" {
		return
	}
	if result.IsFinal {
		l.mu.Lock()
		seg := transcript.NewSegment(result.Speaker, result.Text, l.base+result.Start, l.base+result.End)
		l.segments = append(l.segments, seg)
		l.mu.Unlock()
	}
	if l.onUpdate != nil {
		l.onUpdate(result.Text, result.IsFinal)
	}
}

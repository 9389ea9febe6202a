// Package capture owns the single hardware audio input tap and fans
// buffers out to registered sinks.
package capture

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ErrHardwareUnavailable is returned when the audio engine cannot start.
var ErrHardwareUnavailable = errors.New("audio hardware unavailable")

// SinkKind identifies a buffer consumer.
type SinkKind string

const (
	SinkRecording     SinkKind = "recording"
	SinkTranscription SinkKind = "transcription"
)

// Buffer is one captured PCM buffer (16-bit little-endian mono).
type Buffer struct {
	Data      []byte
	Frames    int
	Timestamp time.Time
}

// SinkFunc consumes captured buffers. Called from the engine's dispatch
// goroutine, never from the hardware callback.
type SinkFunc func(Buffer)

// PowerFunc receives metering updates as average RMS power in dBFS.
type PowerFunc func(db float64)

type Config struct {
	SampleRate        int
	Channels          int
	FramesPerBuffer   int
	ChannelBufferSize int
	PowerInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Channels:          1,
		FramesPerBuffer:   1024,
		ChannelBufferSize: 30,
		PowerInterval:     100 * time.Millisecond,
	}
}

// Engine wraps one portaudio input stream. All sink registration goes
// through the session coordinator; nothing else may touch the hardware.
type Engine struct {
	config  Config
	onPower PowerFunc

	mu      sync.Mutex
	stream  *portaudio.Stream
	sinks   map[SinkKind]SinkFunc
	started bool

	bufCh   chan Buffer
	powerCh chan float64
	done    chan struct{}
	wg      sync.WaitGroup

	droppedCount int
	lastDropLog  time.Time
	lastPower    time.Time
}

func New(config Config, onPower PowerFunc) *Engine {
	return &Engine{
		config:  config,
		onPower: onPower,
		sinks:   make(map[SinkKind]SinkFunc),
	}
}

func NewDefault(onPower PowerFunc) *Engine {
	return New(DefaultConfig(), onPower)
}

// Start configures the shared input stream, installs the tap and starts
// the engine. Any failure tears everything down before returning: the tap
// is never left installed without a running stream.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("capture engine already started")
	}
	if err := e.validateConfig(); err != nil {
		return err
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initialize: %v", ErrHardwareUnavailable, err)
	}

	e.bufCh = make(chan Buffer, e.config.ChannelBufferSize)
	e.powerCh = make(chan float64, 4)
	e.done = make(chan struct{})

	stream, err := portaudio.OpenDefaultStream(
		e.config.Channels, 0, float64(e.config.SampleRate), e.config.FramesPerBuffer,
		e.tap,
	)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: open stream: %v", ErrHardwareUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: start stream: %v", ErrHardwareUnavailable, err)
	}

	e.stream = stream
	e.started = true

	e.wg.Add(1)
	go e.dispatchLoop()

	log.Printf("capture: engine started, rate=%d channels=%d", e.config.SampleRate, e.config.Channels)
	return nil
}

// Stop removes the tap and stops the engine. Calling Stop twice is a
// no-op, not an error.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	stream := e.stream
	e.stream = nil
	close(e.done)
	e.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			log.Printf("capture: stop stream: %v", err)
		}
		if err := stream.Close(); err != nil {
			log.Printf("capture: close stream: %v", err)
		}
	}
	_ = portaudio.Terminate()

	e.wg.Wait()
	log.Printf("capture: engine stopped")
}

// IsRunning reports whether the engine currently owns the tap.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// RegisterSink routes captured buffers to the given consumer. Metering is
// computed regardless of which sinks are registered.
func (e *Engine) RegisterSink(kind SinkKind, fn SinkFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks[kind] = fn
}

// UnregisterSink stops routing buffers to the given consumer.
func (e *Engine) UnregisterSink(kind SinkKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sinks, kind)
}

// tap is the hardware callback. It must stay allocation-light and never
// block: it copies samples, computes power on a throttle, and hands the
// buffer to the dispatch goroutine or drops it under backpressure.
func (e *Engine) tap(in []int16) {
	data := make([]byte, len(in)*2)
	for i, s := range in {
		data[2*i] = byte(s)
		data[2*i+1] = byte(s >> 8)
	}

	now := time.Now()
	if now.Sub(e.lastPower) >= e.config.PowerInterval {
		e.lastPower = now
		select {
		case e.powerCh <- rmsPower(in):
		default:
		}
	}

	select {
	case e.bufCh <- Buffer{Data: data, Frames: len(in) / e.config.Channels, Timestamp: now}:
	case <-e.done:
	default:
		e.droppedCount++
		if now.Sub(e.lastDropLog) > time.Second {
			log.Printf("capture: dropped %d buffers due to backpressure", e.droppedCount)
			e.lastDropLog = now
			e.droppedCount = 0
		}
	}
}

func (e *Engine) dispatchLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case db := <-e.powerCh:
			if e.onPower != nil {
				e.onPower(db)
			}
		case buf := <-e.bufCh:
			e.mu.Lock()
			sinks := make([]SinkFunc, 0, len(e.sinks))
			for _, fn := range e.sinks {
				sinks = append(sinks, fn)
			}
			e.mu.Unlock()
			for _, fn := range sinks {
				fn(buf)
			}
		}
	}
}

// rmsPower computes average power in dBFS over a buffer of 16-bit samples.
func rmsPower(samples []int16) float64 {
	if len(samples) == 0 {
		return -math.MaxFloat64
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return -math.MaxFloat64
	}
	return 20 * math.Log10(rms)
}

func (e *Engine) validateConfig() error {
	if e.config.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", e.config.SampleRate)
	}
	if e.config.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", e.config.Channels)
	}
	if e.config.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid FramesPerBuffer: %d", e.config.FramesPerBuffer)
	}
	if e.config.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", e.config.ChannelBufferSize)
	}
	return nil
}

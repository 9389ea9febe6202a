// Package recorder persists captured PCM audio to a WAV file.
package recorder

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrNotActive reports Write/Pause/Resume/End outside the
	// Begin..End window. Misuse is a programming error and is always
	// surfaced, never silently ignored.
	ErrNotActive = errors.New("recorder not active")
	// ErrAlreadyActive reports Begin while a file is already open.
	ErrAlreadyActive = errors.New("recorder already active")
)

type Config struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		Channels:   1,
		BitDepth:   16,
	}
}

// Recorder writes PCM buffers to one WAV file per Begin/End cycle.
// Lifecycle: Begin, any number of Pause/Resume pairs, exactly one End.
type Recorder struct {
	config Config
	now    func() time.Time

	mu           sync.Mutex
	file         *os.File
	encoder      *wav.Encoder
	active       bool
	paused       bool
	beganAt      time.Time
	lastDuration time.Duration
	writeErrors  int
}

func New(config Config) *Recorder {
	return &Recorder{config: config, now: time.Now}
}

func NewDefault() *Recorder { return New(DefaultConfig()) }

// Begin opens a new WAV file for writing, creating the parent directory
// if missing.
func (r *Recorder) Begin(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return ErrAlreadyActive
	}
	if err := r.validateConfig(); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create recording directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}

	// 1 = PCM format tag
	r.encoder = wav.NewEncoder(file, r.config.SampleRate, r.config.BitDepth, r.config.Channels, 1)
	r.file = file
	r.active = true
	r.paused = false
	r.beganAt = r.now()
	r.writeErrors = 0

	log.Printf("recorder: writing %s (rate=%d depth=%d)", path, r.config.SampleRate, r.config.BitDepth)
	return nil
}

// Write appends one PCM buffer (16-bit little-endian) to the open file.
// A single failed write is logged, not fatal: a transient I/O hiccup must
// not abort a long recording. Calling Write outside Begin..End returns
// ErrNotActive.
func (r *Recorder) Write(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return ErrNotActive
	}
	if r.paused || len(data) == 0 {
		return nil
	}

	samples := make([]int, len(data)/2)
	for i := range samples {
		samples[i] = int(int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8))
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: r.config.Channels,
			SampleRate:  r.config.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: r.config.BitDepth,
	}

	if err := r.encoder.Write(buf); err != nil {
		r.writeErrors++
		log.Printf("recorder: write failed (%d so far): %v", r.writeErrors, err)
	}
	return nil
}

// Pause stops accepting buffers without closing the file handle.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return ErrNotActive
	}
	r.paused = true
	return nil
}

// Resume restarts accepting buffers.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return ErrNotActive
	}
	r.paused = false
	return nil
}

// IsPaused reports whether the recorder is currently dropping buffers.
func (r *Recorder) IsPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active && r.paused
}

// End flushes and closes the file and returns the elapsed wall-clock
// duration measured from Begin. Under pause this diverges from
// accumulated buffer time on purpose.
func (r *Recorder) End() (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return r.lastDuration, ErrNotActive
	}

	elapsed := r.now().Sub(r.beganAt)

	var closeErr error
	if err := r.encoder.Close(); err != nil {
		closeErr = fmt.Errorf("finalize wav: %w", err)
	}
	if err := r.file.Close(); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("close recording file: %w", err)
	}

	r.active = false
	r.paused = false
	r.encoder = nil
	r.file = nil
	r.lastDuration = elapsed

	if r.writeErrors > 0 {
		log.Printf("recorder: finished with %d failed writes", r.writeErrors)
	}
	return elapsed, closeErr
}

// LastDuration returns the duration reported by the most recent End.
func (r *Recorder) LastDuration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDuration
}

func (r *Recorder) validateConfig() error {
	if r.config.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", r.config.SampleRate)
	}
	if r.config.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", r.config.Channels)
	}
	if r.config.BitDepth != 16 {
		return fmt.Errorf("invalid BitDepth: %d (only 16 supported)", r.config.BitDepth)
	}
	return nil
}

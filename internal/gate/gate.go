// Package gate enforces mutual exclusion between a recording session and
// a standalone live-transcription session. A recording session that runs
// transcription internally is allowed: both consumers share one capture
// engine.
package gate

import (
	"errors"
	"sync"
)

// ErrConflict is returned by callers when an acquisition is denied.
var ErrConflict = errors.New("another audio session is active")

// Gate is the single cross-feature shared flag. One instance is owned by
// the composition root and handed to everything that starts sessions.
// All operations are synchronous and all-or-nothing.
type Gate struct {
	mu                   sync.Mutex
	recording            bool
	standaloneTranscript bool
}

func New() *Gate {
	return &Gate{}
}

// TryAcquireRecording claims the recording slot. Fails while a standalone
// transcription session holds the hardware.
func (g *Gate) TryAcquireRecording() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.recording || g.standaloneTranscript {
		return false
	}
	g.recording = true
	return true
}

// ReleaseRecording frees the recording slot.
func (g *Gate) ReleaseRecording() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recording = false
}

// TryAcquireStandaloneTranscript claims the standalone transcription
// slot. Fails while a recording session holds the hardware.
func (g *Gate) TryAcquireStandaloneTranscript() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.recording || g.standaloneTranscript {
		return false
	}
	g.standaloneTranscript = true
	return true
}

// ReleaseStandaloneTranscript frees the standalone transcription slot.
func (g *Gate) ReleaseStandaloneTranscript() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.standaloneTranscript = false
}

// IsBusy reports whether any session currently holds the hardware.
func (g *Gate) IsBusy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.recording || g.standaloneTranscript
}

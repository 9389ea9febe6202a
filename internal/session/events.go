package session

// EventKind enumerates the observable side effects of coordinator state
// transitions.
type EventKind string

const (
	EventInterruptionBegan       EventKind = "interruptionBegan"
	EventRecordingPaused         EventKind = "recordingPaused"
	EventRecordingResumed        EventKind = "recordingResumed"
	EventTranscriptUpdate        EventKind = "transcriptUpdate"
	EventPowerUpdate             EventKind = "powerUpdate"
	EventError                   EventKind = "error"
	EventTranscriptCacheRestored EventKind = "transcriptCacheRestored"
	EventAutoResumeFailed        EventKind = "autoResumeAttemptFailed"
)

// Event is one observable coordinator side effect, published on the
// coordinator's event stream.
type Event struct {
	Kind EventKind

	// transcriptUpdate
	Text    string
	IsFinal bool

	// powerUpdate, in dBFS
	Power float64

	// error / autoResumeAttemptFailed
	Err     error
	Attempt int
}

// ExternalKind enumerates platform-originated audio events fed into the
// state machine through HandleExternalAudioEvent.
type ExternalKind string

const (
	// ExternalInterruptionBegan reports the OS forcibly suspending
	// audio hardware access (phone call, higher-priority session).
	ExternalInterruptionBegan ExternalKind = "interruptionBegan"
	// ExternalInterruptionEnded reports the end of an interruption.
	ExternalInterruptionEnded ExternalKind = "interruptionEnded"
	// ExternalRouteDeviceUnavailable reports the active input device
	// disappearing (headset disconnect).
	ExternalRouteDeviceUnavailable ExternalKind = "routeDeviceUnavailable"
)

// ExternalAudioEvent is one platform event. ShouldResume only applies to
// ExternalInterruptionEnded.
type ExternalAudioEvent struct {
	Kind         ExternalKind
	ShouldResume bool
}

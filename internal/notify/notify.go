// Package notify delivers OS-level lifecycle notices for recording
// sessions. The core owns no notification content beyond these pings.
package notify

import (
	"fmt"
	"log"
	"os/exec"
)

type Notifier interface {
	RecordingStarted()
	RecordingStopped()
	Error(msg string)
}

// Desktop sends notifications through notify-send.
type Desktop struct{}

func (Desktop) RecordingStarted() {
	send("Memovox: Recording Started", false)
}

func (Desktop) RecordingStopped() {
	send("Memovox: Recording Stopped", false)
}

func (Desktop) Error(msg string) {
	send(fmt.Sprintf("Memovox: %s", msg), true)
}

func send(msg string, critical bool) {
	args := []string{"-a", "Memovox"}
	if critical {
		args = append(args, "-u", "critical")
	}
	args = append(args, msg)
	if err := exec.Command("notify-send", args...).Run(); err != nil {
		log.Printf("notify: failed to send notification: %v", err)
	}
}

// Log writes notifications to the process log instead of the desktop.
type Log struct{}

func (Log) RecordingStarted() { log.Printf("notify: recording started") }
func (Log) RecordingStopped() { log.Printf("notify: recording stopped") }
func (Log) Error(msg string)  { log.Printf("notify: error: %s", msg) }

// Nop is a Notifier that does absolutely nothing. Useful in unit tests
// or headless builds.
type Nop struct{}

func (Nop) RecordingStarted() {}
func (Nop) RecordingStopped() {}
func (Nop) Error(msg string)  {}

// ForType returns the notifier for a configured type name.
func ForType(kind string) Notifier {
	switch kind {
	case "desktop":
		return Desktop{}
	case "log":
		return Log{}
	default:
		return Nop{}
	}
}

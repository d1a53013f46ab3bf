package notify

import (
	"fmt"
	"log"
	"os/exec"
)

const appName = "Livescribe"

type Notifier interface {
	RecordingChanged(on bool)
	Error(msg string)
}

// New picks a notifier from the [notifications] config section.
func New(enabled bool, kind string) Notifier {
	if !enabled {
		return Nop{}
	}
	switch kind {
	case "log":
		return Log{}
	case "none":
		return Nop{}
	default:
		return Desktop{}
	}
}

func recordingMessage(on bool) string {
	state := "Stopped"
	if on {
		state = "Started"
	}
	return fmt.Sprintf("%s: %s Recording", appName, state)
}

// Desktop sends notifications through notify-send.
type Desktop struct {
	// Command overrides the notify-send binary.
	Command string
}

func (d Desktop) command() string {
	if d.Command == "" {
		return "notify-send"
	}
	return d.Command
}

func (d Desktop) RecordingChanged(on bool) {
	cmd := exec.Command(d.command(), "-a", appName, recordingMessage(on))
	if err := cmd.Run(); err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}

func (d Desktop) Error(msg string) {
	cmd := exec.Command(d.command(), "-a", appName, "-u", "critical", msg)
	if err := cmd.Run(); err != nil {
		log.Printf("Failed to send error notification: %v", err)
	}
}

// Log writes notifications to the standard logger.
type Log struct{}

func (Log) RecordingChanged(on bool) { log.Printf("Notify: %s", recordingMessage(on)) }
func (Log) Error(msg string)         { log.Printf("Notify: %s error: %s", appName, msg) }

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) RecordingChanged(on bool) {}
func (Nop) Error(msg string)         {}

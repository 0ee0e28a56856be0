package live

import "time"

// Event is the interface for all live session events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// PhaseChangedEvent is emitted when the session phase changes.
type PhaseChangedEvent struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

func (e *PhaseChangedEvent) EventType() string { return "phase.changed" }

// HandshakeEvent is emitted once the connection is established.
type HandshakeEvent struct {
	Model   string        `json:"model"`
	Voice   string        `json:"voice"`
	Latency time.Duration `json:"latency"`
}

func (e *HandshakeEvent) EventType() string { return "session.handshake" }

// SessionClosedEvent is emitted when Stop completes.
type SessionClosedEvent struct {
	Reason string `json:"reason,omitempty"`
}

func (e *SessionClosedEvent) EventType() string { return "session.closed" }

// InputTranscriptEvent carries a fragment of the user's transcribed speech.
type InputTranscriptEvent struct {
	Text string `json:"text"`
}

func (e *InputTranscriptEvent) EventType() string { return "transcript.input" }

// OutputTranscriptEvent carries a fragment of the model's transcribed speech.
type OutputTranscriptEvent struct {
	Text string `json:"text"`
}

func (e *OutputTranscriptEvent) EventType() string { return "transcript.output" }

// AudioScheduledEvent is emitted when a model audio chunk is queued for playback.
type AudioScheduledEvent struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

func (e *AudioScheduledEvent) EventType() string { return "audio.scheduled" }

// InterruptedEvent is emitted when the model reports the user barged in.
// Playback has already been flushed when it is delivered.
type InterruptedEvent struct{}

func (e *InterruptedEvent) EventType() string { return "interrupted" }

// TurnCommittedEvent is emitted when a turn is added to the transcript log.
type TurnCommittedEvent struct {
	Turn Turn `json:"turn"`
}

func (e *TurnCommittedEvent) EventType() string { return "turn.committed" }

// ActivityEvent is emitted when either speaking flag changes.
type ActivityEvent struct {
	Activity
}

func (e *ActivityEvent) EventType() string { return "activity" }

// VisionEvent is emitted when vision streaming starts or stops.
type VisionEvent struct {
	Enabled bool `json:"enabled"`
}

func (e *VisionEvent) EventType() string { return "vision" }

// ErrorEvent is emitted on dial, receive or send failures.
type ErrorEvent struct {
	Err error `json:"-"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// Error returns the underlying error message.
func (e *ErrorEvent) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

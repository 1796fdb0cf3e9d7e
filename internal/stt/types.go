package stt

// EventKind distinguishes the events a streaming recognizer emits
type EventKind int

const (
	// EventTranscript carries interim or final text
	EventTranscript EventKind = iota
	// EventSpeechStarted fires when the provider hears the caller start talking
	EventSpeechStarted
	// EventUtteranceEnd fires after a gap in recognized words
	EventUtteranceEnd
	// EventError reports a provider side failure; the stream may be gone
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventTranscript:
		return "transcript"
	case EventSpeechStarted:
		return "speech_started"
	case EventUtteranceEnd:
		return "utterance_end"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one message from the recognizer
type Event struct {
	Kind EventKind

	// Text is the transcribed text (EventTranscript) or error description (EventError)
	Text string

	// IsFinal is set once the text for this audio span will not change
	IsFinal bool

	// SpeechFinal is set when the provider's endpointing thinks the caller paused
	SpeechFinal bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64

	// StartTime and Duration locate the span in the stream, in seconds
	StartTime float64
	Duration  float64
}

// Options describe the audio a session will send. An empty Encoding means a
// containerized stream (Ogg/Opus from a room) the provider detects itself.
type Options struct {
	Encoding   string
	SampleRate int
}

// Client is a single streaming recognition session
type Client interface {
	// Start opens the stream
	Start() error

	// SendAudio sends an audio chunk to the STT service
	SendAudio(audioData []byte) error

	// Events returns recognizer events in arrival order
	Events() <-chan Event

	// Stop flushes and closes the stream
	Stop() error
}

// Factory opens a new recognizer per call session
type Factory func(opts Options) Client

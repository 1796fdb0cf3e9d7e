package tts

import "context"

// AudioChunk represents a chunk of audio data ready for playout
type AudioChunk struct {
	Data       []byte // PCMU (G.711 μ-law)
	SampleRate int    // 8000 on every telephony leg
	Channels   int
}

// Synthesizer converts text to a stream of audio chunks. Implementations are
// shared by every call session and must be safe for concurrent use.
// Cancelling ctx stops synthesis and closes the channel.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (<-chan *AudioChunk, error)
}

package agent

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/audio"
)

const (
	frameDuration = 20 * time.Millisecond
	// 8kHz μ-law, one byte per sample
	frameBytes = 160
	// about ten seconds of speech
	playoutBuffer = 80000
	pcmuSilence   = 0xFF
)

// sampleWriter is the published audio track
type sampleWriter interface {
	WriteSample(sample media.Sample) error
}

// trackSink paces synthesized PCMU onto the agent's room track in 20ms frames
type trackSink struct {
	out     sampleWriter
	buf     *audio.RingBuffer
	drained chan struct{}
	logger  zerolog.Logger
}

func newTrackSink(out sampleWriter, logger zerolog.Logger) *trackSink {
	return &trackSink{
		out:     out,
		buf:     audio.NewRingBuffer(playoutBuffer),
		drained: make(chan struct{}, 1),
		logger:  logger,
	}
}

// WriteAudio queues pcmu, waiting for the pump while the buffer is full
func (s *trackSink) WriteAudio(ctx context.Context, pcmu []byte) error {
	for {
		n := s.buf.Write(pcmu)
		pcmu = pcmu[n:]
		if len(pcmu) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.drained:
		}
	}
}

// Clear drops everything not yet played
func (s *trackSink) Clear() {
	s.buf.Clear()
}

// Run writes one frame per tick until ctx is done. Nothing is written while
// the buffer is empty; a short last frame is padded with silence.
func (s *trackSink) Run(ctx context.Context) {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeFrame()
		}
	}
}

func (s *trackSink) writeFrame() {
	frame := make([]byte, frameBytes)
	n := s.buf.Read(frame)
	if n == 0 {
		return
	}
	for i := n; i < frameBytes; i++ {
		frame[i] = pcmuSilence
	}

	select {
	case s.drained <- struct{}{}:
	default:
	}

	if err := s.out.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write audio sample")
	}
}

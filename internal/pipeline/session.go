package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/audio"
	"github.com/lexiqai/voice-agent/internal/llm"
	"github.com/lexiqai/voice-agent/internal/observability"
	"github.com/lexiqai/voice-agent/internal/stt"
	"github.com/lexiqai/voice-agent/internal/turn"
)

const turnPollInterval = 100 * time.Millisecond

// ErrRecognizerFailed is returned by Run when the recognizer stream breaks.
// The session cannot hear the caller after that.
var ErrRecognizerFailed = errors.New("speech recognition failed")

// AudioSink plays the agent's speech to the caller
type AudioSink interface {
	// WriteAudio queues 8kHz PCMU, blocking while the sink is full
	WriteAudio(ctx context.Context, pcmu []byte) error
	// Clear drops queued audio the caller has not heard yet
	Clear()
}

// SessionOptions describe the inbound audio of one call leg
type SessionOptions struct {
	// STT is passed to the recognizer factory
	STT stt.Options
	// LocalProcessing runs the noise gate and VAD on inbound audio. It
	// requires 16-bit PCM at 8kHz.
	LocalProcessing bool
}

// Session runs the pipeline for one call
type Session struct {
	pipeline *Pipeline
	stt      stt.Client
	sink     AudioSink
	opts     SessionOptions
	logger   zerolog.Logger
	metrics  *observability.Metrics

	conv     *llm.Conversation
	detector *turn.Detector
	gate     *audio.NoiseGate
	vad      *audio.VADDetector

	mu          sync.Mutex
	runCtx      context.Context
	cancelSpeak context.CancelFunc
	speaking    bool
	wg          sync.WaitGroup
}

// NewSession creates a session with a fresh recognizer, conversation and
// turn detector. metrics may be nil.
func (p *Pipeline) NewSession(sink AudioSink, opts SessionOptions, logger zerolog.Logger, metrics *observability.Metrics) *Session {
	s := &Session{
		pipeline: p,
		stt:      p.newSTT(opts.STT),
		sink:     sink,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		conv:     llm.NewConversation(p.config.Instructions),
		detector: turn.NewDetector(turn.Settings{
			MinEndpointing: p.config.Turn.MinEndpointing,
			MaxEndpointing: p.config.Turn.MaxEndpointing,
		}),
	}
	if opts.LocalProcessing {
		gateCfg := audio.DefaultNoiseGateConfig()
		if p.config.Noise.Threshold > 0 {
			gateCfg.Threshold = p.config.Noise.Threshold
		}
		s.gate = audio.NewNoiseGate(gateCfg)
		s.vad = audio.NewVADDetector(&audio.VADConfig{
			EnergyThreshold: p.config.VAD.EnergyThreshold,
			SilenceFrames:   p.config.VAD.SilenceFrames,
			FrameSize:       gateCfg.FrameSize,
		})
	}
	return s
}

// Start opens the recognizer stream
func (s *Session) Start() error {
	if err := s.stt.Start(); err != nil {
		return fmt.Errorf("failed to start STT: %w", err)
	}
	return nil
}

// Run handles recognizer events and completed turns until ctx is done or
// the recognizer fails. It stops the recognizer and waits for in-flight
// speech before returning.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	ticker := time.NewTicker(turnPollInterval)
	defer ticker.Stop()

	defer func() {
		s.Interrupt()
		s.wg.Wait()
		if err := s.stt.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop STT")
		}
	}()

	events := s.stt.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if ev.Kind == stt.EventError {
				s.logger.Error().Str("error", ev.Text).Msg("Speech recognition failed")
				if s.metrics != nil {
					s.metrics.RecordError("provider_error", observability.StageSTT)
				}
				return fmt.Errorf("%w: %s", ErrRecognizerFailed, ev.Text)
			}
			s.handleEvent(ev)
		case <-ticker.C:
			if text, ok := s.detector.Poll(); ok {
				s.respond(text)
			}
		}
	}
}

func (s *Session) handleEvent(ev stt.Event) {
	switch ev.Kind {
	case stt.EventSpeechStarted:
		s.bargeIn()
	case stt.EventTranscript:
		s.bargeIn()
		if ev.IsFinal {
			s.detector.AddTranscript(ev.Text, ev.SpeechFinal)
		}
	case stt.EventUtteranceEnd:
		s.detector.UtteranceEnd()
	}
}

// SendAudio forwards caller audio to the recognizer
func (s *Session) SendAudio(data []byte) error {
	if s.metrics != nil {
		s.metrics.RecordAudioBytes("in", int64(len(data)))
	}
	if s.opts.LocalProcessing {
		data = s.gate.ProcessPCM(data)
		state := s.vad.ProcessPCM(data)
		if state.Started {
			s.bargeIn()
		}
		if state.Ended {
			s.detector.UtteranceEnd()
		}
	}
	return s.stt.SendAudio(data)
}

// Greet speaks first, steered by the configured greeting instruction
func (s *Session) Greet() {
	s.speak(func(ctx context.Context) (string, error) {
		return s.pipeline.responder.Instruct(ctx, s.conv, s.pipeline.config.Greeting)
	})
}

// Transcript returns the spoken lines so far
func (s *Session) Transcript() []llm.Turn {
	return s.conv.Turns()
}

// Speaking reports whether the agent is producing or playing a reply
func (s *Session) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Interrupt cancels the reply in flight and drops unplayed audio
func (s *Session) Interrupt() {
	s.mu.Lock()
	cancel := s.cancelSpeak
	s.cancelSpeak = nil
	s.speaking = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.sink.Clear()
	}
}

// bargeIn stops the agent whenever the caller talks, including audio that
// was fully generated but is still queued in the sink
func (s *Session) bargeIn() {
	if s.Speaking() {
		s.logger.Debug().Msg("Caller barged in")
	}
	s.Interrupt()
	s.sink.Clear()
}

func (s *Session) respond(text string) {
	s.logger.Info().Str("text", text).Msg("User turn")
	s.speak(func(ctx context.Context) (string, error) {
		return s.pipeline.responder.Reply(ctx, s.conv, text)
	})
}

// speak runs generate then plays the result, replacing any reply in flight
func (s *Session) speak(generate func(ctx context.Context) (string, error)) {
	s.Interrupt()

	s.mu.Lock()
	parent := s.runCtx
	if parent == nil {
		parent = context.Background()
	}
	if parent.Err() != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancelSpeak = cancel
	s.speaking = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.finishSpeaking(ctx, cancel)

		s.stageStart(observability.StageLLM)
		reply, err := generate(ctx)
		s.stageEnd(observability.StageLLM, err == nil)
		if err != nil {
			if !errors.Is(ctx.Err(), context.Canceled) {
				s.logger.Error().Err(err).Msg("Failed to generate reply")
			}
			return
		}
		if reply == "" {
			return
		}
		s.logger.Info().Str("text", reply).Msg("Agent turn")

		s.stageStart(observability.StageTTS)
		err = s.play(ctx, reply)
		s.stageEnd(observability.StageTTS, err == nil)
		if err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Failed to play reply")
		}
	}()
}

func (s *Session) play(ctx context.Context, text string) error {
	chunks, err := s.pipeline.tts.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	for chunk := range chunks {
		if err := s.sink.WriteAudio(ctx, chunk.Data); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordAudioBytes("out", int64(len(chunk.Data)))
		}
	}
	return ctx.Err()
}

// finishSpeaking clears the speaking flag unless a newer reply replaced this one
func (s *Session) finishSpeaking(ctx context.Context, cancel context.CancelFunc) {
	s.mu.Lock()
	if ctx.Err() == nil {
		s.cancelSpeak = nil
		s.speaking = false
	}
	s.mu.Unlock()
	cancel()
}

func (s *Session) stageStart(stage string) {
	if s.metrics != nil {
		s.metrics.RecordStageStart(stage)
	}
}

func (s *Session) stageEnd(stage string, success bool) {
	if s.metrics != nil {
		s.metrics.RecordStageEnd(stage, success)
	}
}

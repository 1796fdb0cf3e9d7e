package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/observability"
)

// ErrNotActive is returned when audio is sent before Start or after Stop
var ErrNotActive = errors.New("deepgram client is not active")

// DeepgramSettings are the per-process Deepgram parameters
type DeepgramSettings struct {
	APIKey   string
	Model    string
	Language string
}

// callbackHandler embeds the SDK's default handler and forwards the
// messages the pipeline cares about
type callbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	client *DeepgramClient
}

func (h *callbackHandler) Message(msg *msginterfaces.MessageResponse) error {
	h.client.handleMessage(msg)
	return nil
}

func (h *callbackHandler) SpeechStarted(*msginterfaces.SpeechStartedResponse) error {
	h.client.emit(Event{Kind: EventSpeechStarted})
	return nil
}

func (h *callbackHandler) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error {
	h.client.emit(Event{Kind: EventUtteranceEnd})
	return nil
}

func (h *callbackHandler) Error(er *msginterfaces.ErrorResponse) error {
	h.client.handleError(fmt.Sprintf("%+v", er))
	return nil
}

func (h *callbackHandler) Close(*msginterfaces.CloseResponse) error {
	h.client.markInactive()
	return nil
}

// DeepgramClient implements Client using Deepgram's streaming API
type DeepgramClient struct {
	settings DeepgramSettings
	opts     Options
	logger   zerolog.Logger

	client   *listenClient.WSCallback
	events   chan Event
	mu       sync.RWMutex
	isActive bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewDeepgramClient creates a new Deepgram streaming client
func NewDeepgramClient(settings DeepgramSettings, opts Options, logger zerolog.Logger) *DeepgramClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &DeepgramClient{
		settings: settings,
		opts:     opts,
		logger:   logger.With().Str("component", "deepgram").Logger(),
		events:   make(chan Event, 100),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// NewDeepgramFactory returns a Factory that opens Deepgram sessions
func NewDeepgramFactory(settings DeepgramSettings, logger zerolog.Logger) Factory {
	return func(opts Options) Client {
		return NewDeepgramClient(settings, opts, logger)
	}
}

func (d *DeepgramClient) transcriptionOptions() *interfaces.LiveTranscriptionOptions {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          d.settings.Model,
		Language:       d.settings.Language,
		Punctuate:      true,
		SmartFormat:    true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Channels:       1,
	}
	if d.opts.Encoding != "" {
		tOptions.Encoding = d.opts.Encoding
		tOptions.SampleRate = d.opts.SampleRate
	}
	return tOptions
}

// Start opens the Deepgram websocket
func (d *DeepgramClient) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isActive {
		return fmt.Errorf("deepgram client is already active")
	}

	callback := &callbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		client:                 d,
	}

	client, err := listenClient.NewWSUsingCallback(d.ctx, d.settings.APIKey, nil, d.transcriptionOptions(), callback)
	if err != nil {
		return fmt.Errorf("failed to create Deepgram client: %w", err)
	}
	if !client.Connect() {
		return fmt.Errorf("failed to connect to Deepgram")
	}

	d.client = client
	d.isActive = true

	d.logger.Info().
		Str("model", d.settings.Model).
		Str("language", d.settings.Language).
		Str("encoding", d.opts.Encoding).
		Msg("Deepgram streaming client started")
	return nil
}

// handleMessage turns a transcription result into an Event
func (d *DeepgramClient) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}

	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return
	}

	startTime := msg.Start
	duration := msg.Duration
	if len(alt.Words) > 0 && duration == 0 {
		startTime = alt.Words[0].Start
		duration = alt.Words[len(alt.Words)-1].End - startTime
	}

	d.emit(Event{
		Kind:        EventTranscript,
		Text:        alt.Transcript,
		IsFinal:     msg.IsFinal,
		SpeechFinal: msg.SpeechFinal,
		Confidence:  alt.Confidence,
		StartTime:   startTime,
		Duration:    duration,
	})

	if msg.IsFinal {
		d.logger.Debug().Str("text", alt.Transcript).Float64("confidence", alt.Confidence).Msg("Final transcription")
	}
}

func (d *DeepgramClient) handleError(description string) {
	d.logger.Error().Str("error", description).Msg("Deepgram error")
	observability.RecordError("provider_error", observability.StageSTT)
	d.markInactive()
	d.emit(Event{Kind: EventError, Text: description})
}

func (d *DeepgramClient) markInactive() {
	d.mu.Lock()
	d.isActive = false
	d.mu.Unlock()
}

// emit never blocks the SDK's read loop
func (d *DeepgramClient) emit(ev Event) {
	select {
	case d.events <- ev:
	default:
		d.logger.Warn().Str("kind", ev.Kind.String()).Msg("Event channel full, dropping STT event")
	}
}

// SendAudio sends an audio chunk to Deepgram
func (d *DeepgramClient) SendAudio(audioData []byte) error {
	d.mu.RLock()
	active := d.isActive
	client := d.client
	d.mu.RUnlock()

	if !active || client == nil {
		return ErrNotActive
	}
	if _, err := client.Write(audioData); err != nil {
		return fmt.Errorf("failed to send audio to Deepgram: %w", err)
	}
	return nil
}

// Events returns a channel that receives recognizer events
func (d *DeepgramClient) Events() <-chan Event {
	return d.events
}

// Stop finishes the Deepgram session
func (d *DeepgramClient) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		d.client.Finish()
		d.client = nil
	}
	d.isActive = false
	d.cancel()
	d.logger.Info().Msg("Deepgram streaming client stopped")
	return nil
}

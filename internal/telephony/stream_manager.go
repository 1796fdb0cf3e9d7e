// Package telephony serves Twilio Media Streams: a caller reaching the
// Twilio number directly is bridged over a websocket into the same voice
// pipeline the LiveKit rooms use.
package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/audio"
	"github.com/lexiqai/voice-agent/internal/observability"
	"github.com/lexiqai/voice-agent/internal/pipeline"
	"github.com/lexiqai/voice-agent/internal/recording"
	"github.com/lexiqai/voice-agent/internal/stt"
)

// StreamPath is where Twilio connects the media stream
const StreamPath = "/streams/twilio"

// TwilioMessage represents a message from Twilio Media Streams
type TwilioMessage struct {
	Event          string       `json:"event"`
	SequenceNumber string       `json:"sequenceNumber,omitempty"`
	StreamSid      string       `json:"streamSid,omitempty"`
	Media          *TwilioMedia `json:"media,omitempty"`
	Start          *TwilioStart `json:"start,omitempty"`
	Stop           *TwilioStop  `json:"stop,omitempty"`
}

// TwilioMedia represents the media payload in a media event
type TwilioMedia struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // base64 μ-law
}

// TwilioStart represents the start event payload
type TwilioStart struct {
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	StreamSid        string            `json:"streamSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// TwilioStop represents the stop event payload
type TwilioStop struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

type transcriptSaver interface {
	SaveTranscript(ctx context.Context, t recording.Transcript) error
}

// StreamHandler accepts Twilio media stream websockets
type StreamHandler struct {
	pipeline *pipeline.Pipeline
	recorder transcriptSaver
	upgrader websocket.Upgrader
}

// NewStreamHandler returns a handler running p for every streamed call.
// recorder may be nil.
func NewStreamHandler(p *pipeline.Pipeline, recorder transcriptSaver) *StreamHandler {
	return &StreamHandler{
		pipeline: p,
		recorder: recorder,
		upgrader: websocket.Upgrader{
			// Twilio does not send an Origin header
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// CallSession holds the state of a single streamed phone call
type CallSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	callSid   string
	streamSid string
	unplayed  bool

	session   *pipeline.Session
	done      chan struct{}
	startedAt time.Time
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := observability.GetLogger()
		logger.Error().Err(err).Msg("Failed to upgrade Twilio connection")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	call := &CallSession{
		conn:   conn,
		logger: observability.WithCorrelationID(observability.NewCorrelationID()).With().Str("component", "telephony").Logger(),
	}
	call.readLoop(ctx, h)

	cancel()
	call.end(h)
}

func (s *CallSession) readLoop(ctx context.Context, h *StreamHandler) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		var msg TwilioMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Error().Err(err).Msg("Failed to parse Twilio message")
			continue
		}

		switch msg.Event {
		case "connected":
			s.logger.Debug().Msg("Twilio stream connected")
		case "start":
			if err := s.start(ctx, h, msg); err != nil {
				s.logger.Error().Err(err).Msg("Failed to start call session")
				return
			}
		case "media":
			s.handleMedia(msg.Media)
		case "mark":
		case "stop":
			s.logger.Info().Msg("Call stopped")
			return
		default:
			s.logger.Debug().Str("event", msg.Event).Msg("Unknown Twilio event")
		}
	}
}

func (s *CallSession) start(ctx context.Context, h *StreamHandler, msg TwilioMessage) error {
	if s.session != nil {
		return nil
	}
	if msg.Start == nil {
		return fmt.Errorf("start event without payload")
	}

	s.mu.Lock()
	s.callSid = msg.Start.CallSid
	s.streamSid = msg.StreamSid
	if s.streamSid == "" {
		s.streamSid = msg.Start.StreamSid
	}
	s.mu.Unlock()

	s.logger = s.logger.With().Str("call_sid", msg.Start.CallSid).Str("stream_sid", s.streamSid).Logger()
	s.logger.Info().Msg("Call started")

	s.metrics = observability.NewCallMetrics(msg.Start.CallSid)
	s.metrics.RecordCallStart("inbound")
	s.startedAt = time.Now()

	s.session = h.pipeline.NewSession(&twilioSink{call: s}, pipeline.SessionOptions{
		STT:             stt.Options{Encoding: "linear16", SampleRate: 8000},
		LocalProcessing: true,
	}, s.logger, s.metrics)
	if err := s.session.Start(); err != nil {
		s.metrics.RecordError("provider_error", observability.StageSTT)
		return err
	}

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.session.Run(ctx); err != nil {
			// closing the stream ends <Connect>, which hangs up the call
			s.logger.Error().Err(err).Msg("Ending call")
			s.conn.Close()
		}
	}()
	s.session.Greet()
	return nil
}

// handleMedia decodes one inbound μ-law frame and forwards it as PCM
func (s *CallSession) handleMedia(media *TwilioMedia) {
	if s.session == nil || media == nil {
		return
	}
	if media.Track != "" && media.Track != "inbound" {
		return
	}
	payload := media.Payload
	if payload == "" {
		payload = media.Chunk
	}

	pcmu, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to decode base64 audio")
		return
	}
	pcm, err := audio.ConvertPCMUToPCM(pcmu)
	if err != nil {
		return
	}
	if err := s.session.SendAudio(pcm); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to forward caller audio")
	}
}

func (s *CallSession) end(h *StreamHandler) {
	if s.session == nil {
		return
	}
	<-s.done
	s.metrics.RecordCallEnd()

	if h.recorder == nil {
		return
	}
	err := h.recorder.SaveTranscript(context.Background(), recording.Transcript{
		Room:      RoomName(s.callSid),
		JobID:     s.callSid,
		Direction: "inbound",
		StartedAt: s.startedAt,
		EndedAt:   time.Now(),
		Turns:     s.session.Transcript(),
	})
	if err != nil && !errors.Is(err, recording.ErrDisabled) {
		s.logger.Error().Err(err).Msg("Failed to save transcript")
	}
}

// RoomName keys a streamed call's artifacts the way room calls are keyed
func RoomName(callSid string) string {
	return "twilio-" + callSid
}

type outboundMessage struct {
	Event     string           `json:"event"`
	StreamSid string           `json:"streamSid"`
	Media     *outboundPayload `json:"media,omitempty"`
}

type outboundPayload struct {
	Payload string `json:"payload"`
}

func (s *CallSession) send(msg outboundMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// twilioSink hands speech to Twilio, which buffers and plays it in order.
// Clear asks Twilio to drop what it has not played.
type twilioSink struct {
	call *CallSession
}

func (t *twilioSink) WriteAudio(ctx context.Context, pcmu []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.call.mu.Lock()
	streamSid := t.call.streamSid
	t.call.unplayed = true
	t.call.mu.Unlock()

	return t.call.send(outboundMessage{
		Event:     "media",
		StreamSid: streamSid,
		Media:     &outboundPayload{Payload: base64.StdEncoding.EncodeToString(pcmu)},
	})
}

func (t *twilioSink) Clear() {
	t.call.mu.Lock()
	streamSid := t.call.streamSid
	unplayed := t.call.unplayed
	t.call.unplayed = false
	t.call.mu.Unlock()

	if !unplayed {
		return
	}
	if err := t.call.send(outboundMessage{Event: "clear", StreamSid: streamSid}); err != nil {
		t.call.logger.Debug().Err(err).Msg("Failed to clear Twilio playback")
	}
}

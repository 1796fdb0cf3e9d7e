package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/config"
	"github.com/lexiqai/voice-agent/internal/lkapi"
	"github.com/lexiqai/voice-agent/internal/llm"
	"github.com/lexiqai/voice-agent/internal/observability"
	"github.com/lexiqai/voice-agent/internal/pipeline"
	"github.com/lexiqai/voice-agent/internal/provision"
	"github.com/lexiqai/voice-agent/internal/recording"
)

type dialer interface {
	DialOut(ctx context.Context, room, trunkID, phoneNumber string) (*livekit.SIPParticipantInfo, error)
}

type recorder interface {
	Start(ctx context.Context, room string) (string, error)
	Stop(ctx context.Context, egressID string) error
	SaveTranscript(ctx context.Context, t recording.Transcript) error
}

// Agent runs calls with one shared pipeline
type Agent struct {
	pipeline *pipeline.Pipeline
	dialer   dialer
	recorder recorder
	trunkID  func() (string, error)
	join     joinFunc
	now      func() time.Time
}

// New wires the entrypoint to LiveKit. The outbound trunk is resolved per
// outbound call so a later provisioning run is picked up without a restart.
func New(p *pipeline.Pipeline, lk *lkapi.Client, rec *recording.Sink, cfg *config.AgentConfig) *Agent {
	return &Agent{
		pipeline: p,
		dialer:   lk,
		recorder: rec,
		trunkID: func() (string, error) {
			return provision.ResolveOutboundTrunkID(cfg.OutboundTrunkID, cfg.ProvisionOutput)
		},
		join: joinLiveKitRoom,
		now:  time.Now,
	}
}

// HandleJob is the worker's job handler. It returns when the caller hangs
// up, the room closes or ctx is cancelled. An error means the call never
// got going or lost its speech recognizer.
func (a *Agent) HandleJob(ctx context.Context, job *livekit.Job, url, token string) error {
	logger := observability.ForJob(job.GetId(), job.GetRoom().GetName())
	jc := NewJobContext(job, logger)
	logger = logger.With().Str("direction", jc.Direction()).Logger()

	metrics := observability.NewCallMetrics(jc.JobID)
	metrics.RecordCallStart(jc.Direction())
	defer metrics.RecordCallEnd()
	startedAt := a.now()

	events := newRoomEvents()
	room, err := a.join(url, token, events, logger)
	if err != nil {
		metrics.RecordError("room_join", "agent")
		return err
	}
	defer room.Disconnect()
	logger.Info().Msg("Joined room")

	egressID := a.startRecording(ctx, jc, logger)
	if egressID != "" {
		defer a.stopRecording(ctx, egressID, logger)
	}

	if jc.PhoneNumber != "" {
		if err := a.dial(ctx, jc, logger); err != nil {
			metrics.RecordError("sip_dial", "agent")
			return err
		}
	}

	out, err := room.PublishAudio()
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := newTrackSink(out, logger)
	go sink.Run(callCtx)

	// Room audio reaches the recognizer as Ogg/Opus, which it detects itself
	session := a.pipeline.NewSession(sink, pipeline.SessionOptions{}, logger, metrics)
	if err := session.Start(); err != nil {
		metrics.RecordError("provider_error", observability.StageSTT)
		return err
	}
	sessionErr := make(chan error, 1)
	go func() { sessionErr <- session.Run(callCtx) }()

	if jc.Direction() == DirectionInbound {
		session.Greet()
	}

	var runErr error
	sessionDone := false
wait:
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Job cancelled")
			break wait
		case <-events.ended:
			break wait
		case err := <-sessionErr:
			// the caller can no longer be heard, so the call is over
			runErr = err
			sessionDone = true
			break wait
		case track := <-events.tracks:
			go ingest(track, audioWriter(session.SendAudio), logger)
		}
	}

	cancel()
	if !sessionDone {
		runErr = <-sessionErr
	}

	a.saveTranscript(ctx, jc, egressID, startedAt, session.Transcript(), logger)
	logger.Info().Dur("duration", a.now().Sub(startedAt)).Msg("Call ended")
	return runErr
}

func (a *Agent) startRecording(ctx context.Context, jc JobContext, logger zerolog.Logger) string {
	egressID, err := a.recorder.Start(ctx, jc.Room)
	switch {
	case errors.Is(err, recording.ErrDisabled):
		logger.Info().Msg("Recording disabled, no S3 credentials")
	case err != nil:
		logger.Error().Str("error", lkapi.ErrorMessage(err)).Msg("Failed to start recording")
	default:
		logger.Info().Str("egress_id", egressID).Msg("Recording started")
	}
	return egressID
}

// stopRecording runs after the job context may already be cancelled
func (a *Agent) stopRecording(ctx context.Context, egressID string, logger zerolog.Logger) {
	if err := a.recorder.Stop(context.WithoutCancel(ctx), egressID); err != nil {
		logger.Error().Str("egress_id", egressID).Str("error", lkapi.ErrorMessage(err)).Msg("Failed to stop recording")
		return
	}
	logger.Info().Str("egress_id", egressID).Msg("Recording stopped")
}

func (a *Agent) dial(ctx context.Context, jc JobContext, logger zerolog.Logger) error {
	trunkID, err := a.trunkID()
	if err != nil {
		logger.Error().Err(err).Msg("No outbound trunk to dial with")
		return err
	}

	logger.Info().Str("phone_number", jc.PhoneNumber).Str("trunk_id", trunkID).Msg("Placing outbound call")
	if _, err := a.dialer.DialOut(ctx, jc.Room, trunkID, jc.PhoneNumber); err != nil {
		logger.Error().Str("error", lkapi.ErrorMessage(err)).Msg("Failed to create SIP participant")
		return fmt.Errorf("outbound call to %s failed: %s", jc.PhoneNumber, lkapi.ErrorMessage(err))
	}
	logger.Info().Str("phone_number", jc.PhoneNumber).Msg("Outbound call answered")
	return nil
}

// saveTranscript uploads even when the job was cancelled
func (a *Agent) saveTranscript(ctx context.Context, jc JobContext, egressID string, startedAt time.Time, turns []llm.Turn, logger zerolog.Logger) {
	t := recording.Transcript{
		Room:      jc.Room,
		JobID:     jc.JobID,
		Direction: jc.Direction(),
		StartedAt: startedAt,
		EndedAt:   a.now(),
		EgressID:  egressID,
		Turns:     turns,
	}
	if egressID != "" {
		t.RecordingKey = lkapi.RecordingPath(jc.Room)
	}

	err := a.recorder.SaveTranscript(context.WithoutCancel(ctx), t)
	switch {
	case errors.Is(err, recording.ErrDisabled):
	case err != nil:
		logger.Error().Err(err).Msg("Failed to save transcript")
	default:
		logger.Info().Str("key", recording.TranscriptKey(jc.Room)).Int("turns", len(turns)).Msg("Transcript saved")
	}
}

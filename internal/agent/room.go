package agent

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
)

const (
	agentTrackName = "agent-voice"
	opusClockRate  = 48000
	opusChannels   = 2
)

// packetReader yields the caller's RTP packets until the track ends
type packetReader interface {
	ReadPacket() (*rtp.Packet, error)
}

// callRoom is the joined room as the entrypoint uses it
type callRoom interface {
	// PublishAudio publishes the agent's 8kHz PCMU microphone track
	PublishAudio() (sampleWriter, error)
	Disconnect()
}

// roomEvents carries what happens in the room back to the entrypoint.
// ended is closed once, when the caller leaves or the room connection drops.
type roomEvents struct {
	tracks chan packetReader
	ended  chan struct{}
	once   sync.Once
}

func newRoomEvents() *roomEvents {
	return &roomEvents{
		tracks: make(chan packetReader, 4),
		ended:  make(chan struct{}),
	}
}

func (e *roomEvents) end() {
	e.once.Do(func() { close(e.ended) })
}

// joinFunc connects to a room with a job token
type joinFunc func(url, token string, events *roomEvents, logger zerolog.Logger) (callRoom, error)

type lkRoom struct {
	room *lksdk.Room
}

type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (t remoteTrack) ReadPacket() (*rtp.Packet, error) {
	pkt, _, err := t.track.ReadRTP()
	return pkt, err
}

type localTrack struct {
	track *lksdk.LocalSampleTrack
}

func (t localTrack) WriteSample(sample media.Sample) error {
	return t.track.WriteSample(sample, nil)
}

func joinLiveKitRoom(url, token string, events *roomEvents, logger zerolog.Logger) (callRoom, error) {
	cb := lksdk.NewRoomCallback()
	cb.OnTrackSubscribed = func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		logger.Info().
			Str("participant", rp.Identity()).
			Str("track_sid", pub.SID()).
			Str("codec", track.Codec().MimeType).
			Msg("Subscribed to caller audio")
		select {
		case events.tracks <- remoteTrack{track: track}:
		default:
			logger.Warn().Str("track_sid", pub.SID()).Msg("Dropping extra audio track")
		}
	}
	cb.OnParticipantDisconnected = func(rp *lksdk.RemoteParticipant) {
		logger.Info().Str("participant", rp.Identity()).Msg("Caller left the room")
		events.end()
	}
	cb.OnDisconnected = func() {
		logger.Info().Msg("Disconnected from room")
		events.end()
	}

	room, err := lksdk.ConnectToRoomWithToken(url, token, cb)
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}
	return &lkRoom{room: room}, nil
}

func (r *lkRoom) PublishAudio() (sampleWriter, error) {
	track, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypePCMU,
		ClockRate: 8000,
		Channels:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}
	_, err = r.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   agentTrackName,
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish audio track: %w", err)
	}
	return localTrack{track: track}, nil
}

func (r *lkRoom) Disconnect() {
	r.room.Disconnect()
}

// audioWriter adapts a session's SendAudio to io.Writer
type audioWriter func([]byte) error

func (f audioWriter) Write(p []byte) (int, error) {
	if err := f(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ingest repackages the caller's Opus RTP into an Ogg stream on w until the
// track ends or w fails
func ingest(src packetReader, w io.Writer, logger zerolog.Logger) {
	ogg, err := oggwriter.NewWith(w, opusClockRate, opusChannels)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start caller audio stream")
		return
	}
	defer ogg.Close()

	for {
		pkt, err := src.ReadPacket()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Msg("Caller track read ended")
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		if err := ogg.WriteRTP(pkt); err != nil {
			logger.Debug().Err(err).Msg("Stopped forwarding caller audio")
			return
		}
	}
}

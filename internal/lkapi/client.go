// Package lkapi wraps the LiveKit server APIs the provisioning command and
// the agent call: SIP trunks and dispatch rules, outbound SIP participants,
// room egress, agent dispatch and worker tokens.
package lkapi

import (
	"context"
	"errors"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/twitchtv/twirp"

	"github.com/lexiqai/voice-agent/internal/config"
)

type sipService interface {
	CreateSIPInboundTrunk(ctx context.Context, in *livekit.CreateSIPInboundTrunkRequest) (*livekit.SIPInboundTrunkInfo, error)
	CreateSIPOutboundTrunk(ctx context.Context, in *livekit.CreateSIPOutboundTrunkRequest) (*livekit.SIPOutboundTrunkInfo, error)
	CreateSIPDispatchRule(ctx context.Context, in *livekit.CreateSIPDispatchRuleRequest) (*livekit.SIPDispatchRuleInfo, error)
	CreateSIPParticipant(ctx context.Context, in *livekit.CreateSIPParticipantRequest) (*livekit.SIPParticipantInfo, error)
}

type egressService interface {
	StartRoomCompositeEgress(ctx context.Context, req *livekit.RoomCompositeEgressRequest) (*livekit.EgressInfo, error)
	StopEgress(ctx context.Context, req *livekit.StopEgressRequest) (*livekit.EgressInfo, error)
}

type dispatchService interface {
	CreateDispatch(ctx context.Context, req *livekit.CreateAgentDispatchRequest) (*livekit.AgentDispatch, error)
}

// Client talks to one LiveKit project
type Client struct {
	sip      sipService
	egress   egressService
	dispatch dispatchService
}

// New creates a client for the project at cfg.URL
func New(cfg config.LiveKitConfig) *Client {
	return &Client{
		sip:      lksdk.NewSIPClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		egress:   lksdk.NewEgressClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		dispatch: lksdk.NewAgentDispatchServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
	}
}

// ErrorMessage returns the server's message for a twirp error and
// err.Error() for anything else
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var te twirp.Error
	if errors.As(err, &te) {
		return te.Msg()
	}
	return err.Error()
}

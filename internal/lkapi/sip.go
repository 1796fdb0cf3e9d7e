package lkapi

import (
	"context"
	"fmt"

	"github.com/livekit/protocol/livekit"

	"github.com/lexiqai/voice-agent/internal/provision"
)

var _ provision.AgentRuntimeAPI = (*Client)(nil)

// CreateInboundTrunk creates a SIP trunk accepting calls for the given numbers
func (c *Client) CreateInboundTrunk(ctx context.Context, trunk provision.InboundTrunk) (string, error) {
	info, err := c.sip.CreateSIPInboundTrunk(ctx, &livekit.CreateSIPInboundTrunkRequest{
		Trunk: &livekit.SIPInboundTrunkInfo{
			Name:    trunk.Name,
			Numbers: trunk.Numbers,
		},
	})
	if err != nil {
		return "", err
	}
	return info.SipTrunkId, nil
}

// CreateDispatchRule creates an individual dispatch rule: every caller gets a
// fresh room named with the prefix and the agent is dispatched into it
func (c *Client) CreateDispatchRule(ctx context.Context, rule provision.DispatchRule) (string, error) {
	info, err := c.sip.CreateSIPDispatchRule(ctx, &livekit.CreateSIPDispatchRuleRequest{
		Name: rule.Name,
		Rule: &livekit.SIPDispatchRule{
			Rule: &livekit.SIPDispatchRule_DispatchRuleIndividual{
				DispatchRuleIndividual: &livekit.SIPDispatchRuleIndividual{
					RoomPrefix: rule.RoomPrefix,
				},
			},
		},
		TrunkIds: rule.TrunkIDs,
		RoomConfig: &livekit.RoomConfiguration{
			Agents: []*livekit.RoomAgentDispatch{{AgentName: rule.AgentName}},
		},
	})
	if err != nil {
		return "", err
	}
	return info.SipDispatchRuleId, nil
}

// CreateOutboundTrunk creates a SIP trunk that dials out through the
// provider's termination domain over TLS
func (c *Client) CreateOutboundTrunk(ctx context.Context, trunk provision.OutboundTrunk) (string, error) {
	info, err := c.sip.CreateSIPOutboundTrunk(ctx, &livekit.CreateSIPOutboundTrunkRequest{
		Trunk: &livekit.SIPOutboundTrunkInfo{
			Name:         trunk.Name,
			Address:      trunk.Address,
			Transport:    livekit.SIPTransport_SIP_TRANSPORT_TLS,
			Numbers:      trunk.Numbers,
			AuthUsername: trunk.AuthUsername,
			AuthPassword: trunk.AuthPassword,
		},
	})
	if err != nil {
		return "", err
	}
	return info.SipTrunkId, nil
}

// DialOut places an outbound call into room and blocks until it is answered.
// The callee joins with their phone number as identity.
func (c *Client) DialOut(ctx context.Context, room, trunkID, phoneNumber string) (*livekit.SIPParticipantInfo, error) {
	if trunkID == "" {
		return nil, fmt.Errorf("dial %s: %w", phoneNumber, provision.ErrNoOutboundTrunk)
	}
	return c.sip.CreateSIPParticipant(ctx, &livekit.CreateSIPParticipantRequest{
		RoomName:            room,
		SipTrunkId:          trunkID,
		SipCallTo:           phoneNumber,
		ParticipantIdentity: phoneNumber,
		WaitUntilAnswered:   true,
	})
}

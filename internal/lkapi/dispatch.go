package lkapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
)

// JobMetadata is the JSON carried on an agent dispatch. A phone number
// makes the job an outbound call.
type JobMetadata struct {
	PhoneNumber string `json:"phone_number,omitempty"`
}

// ParseJobMetadata decodes job metadata. Empty metadata is an inbound call.
func ParseJobMetadata(raw string) (JobMetadata, error) {
	var md JobMetadata
	if raw == "" {
		return md, nil
	}
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return JobMetadata{}, fmt.Errorf("invalid job metadata: %w", err)
	}
	return md, nil
}

// OutboundRoomName returns a fresh room name for an outbound call
func OutboundRoomName(prefix string) string {
	return prefix + "outbound-" + uuid.NewString()[:8]
}

// DispatchOutboundCall asks the runtime to start agentName in a new room
// with the callee's number in the job metadata. It returns the dispatch id.
func (c *Client) DispatchOutboundCall(ctx context.Context, agentName, room, phoneNumber string) (string, error) {
	md, err := json.Marshal(JobMetadata{PhoneNumber: phoneNumber})
	if err != nil {
		return "", err
	}
	dispatch, err := c.dispatch.CreateDispatch(ctx, &livekit.CreateAgentDispatchRequest{
		AgentName: agentName,
		Room:      room,
		Metadata:  string(md),
	})
	if err != nil {
		return "", err
	}
	return dispatch.Id, nil
}

// WorkerToken mints the token a worker authenticates to the agent endpoint with
func WorkerToken(apiKey, apiSecret string) (string, error) {
	at := auth.NewAccessToken(apiKey, apiSecret)
	at.SetVideoGrant(&auth.VideoGrant{Agent: true})
	return at.ToJWT()
}

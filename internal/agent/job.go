// Package agent is the per-call entrypoint the worker runs for each job:
// it joins the call's room, optionally dials the callee, and runs a
// pipeline session over the room's audio.
package agent

import (
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/lkapi"
)

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// JobContext is what the entrypoint knows about one dispatched call
type JobContext struct {
	JobID string
	Room  string
	// PhoneNumber is set for outbound calls
	PhoneNumber string
}

// NewJobContext reads the call out of a job. Metadata that is not valid
// JSON is logged and the call is handled as inbound.
func NewJobContext(job *livekit.Job, logger zerolog.Logger) JobContext {
	jc := JobContext{
		JobID: job.GetId(),
		Room:  job.GetRoom().GetName(),
	}
	md, err := lkapi.ParseJobMetadata(job.GetMetadata())
	if err != nil {
		logger.Error().Err(err).Msg("Invalid job metadata, treating call as inbound")
		return jc
	}
	jc.PhoneNumber = md.PhoneNumber
	return jc
}

// Direction is outbound when there is a number to dial
func (jc JobContext) Direction() string {
	if jc.PhoneNumber != "" {
		return DirectionOutbound
	}
	return DirectionInbound
}

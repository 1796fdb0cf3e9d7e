package provision

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrNoOutboundTrunk is returned when no outbound trunk id is configured or provisioned.
var ErrNoOutboundTrunk = errors.New("no outbound SIP trunk id configured")

// Result holds every identifier a provisioning run created
type Result struct {
	BaseName    string `json:"base_name"`
	PhoneNumber string `json:"phone_number"`
	AgentName   string `json:"agent_name"`

	InboundTrunkID  string `json:"livekit_inbound_trunk_id"`
	DispatchRuleID  string `json:"livekit_dispatch_rule_id"`
	OutboundTrunkID string `json:"livekit_outbound_trunk_id"`

	TwilioTrunkSID    string `json:"twilio_trunk_sid"`
	CredentialListSID string `json:"twilio_credential_list_sid"`
	TerminationURI    string `json:"twilio_termination_uri"`
	OriginationURL    string `json:"twilio_origination_url"`

	CreatedAt time.Time `json:"created_at"`
}

// Save writes the result as JSON. The file is readable only by its owner.
func (r *Result) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode provisioning result: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write provisioning result: %w", err)
	}
	return nil
}

// LoadResult reads a result written by Save
func LoadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse provisioning result %s: %w", path, err)
	}
	return &r, nil
}

// ResolveOutboundTrunkID prefers an explicit id and falls back to the
// provisioning artifact at path.
func ResolveOutboundTrunkID(explicit, path string) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	if path == "" {
		return "", ErrNoOutboundTrunk
	}
	r, err := LoadResult(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: set LIVEKIT_OUTBOUND_TRUNK_ID or run provisioning (%s not found)", ErrNoOutboundTrunk, path)
		}
		return "", err
	}
	if r.OutboundTrunkID == "" {
		return "", fmt.Errorf("%w: %s has no outbound trunk id", ErrNoOutboundTrunk, path)
	}
	return r.OutboundTrunkID, nil
}

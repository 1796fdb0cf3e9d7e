// Package provision creates the Twilio and LiveKit resources that route a
// phone number to the voice agent and back out again.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrPhoneNumberNotFound is returned when the number is not on the Twilio account.
var ErrPhoneNumberNotFound = errors.New("phone number not found in Twilio account")

// Trunk is a Twilio Elastic SIP trunk
type Trunk struct {
	SID        string
	DomainName string
}

// OriginationURL routes calls arriving on a Twilio trunk to a SIP endpoint
type OriginationURL struct {
	FriendlyName string
	SIPURL       string
	Weight       int
	Priority     int
	Enabled      bool
}

// TelephonyAPI is the subset of the Twilio REST API provisioning needs
type TelephonyAPI interface {
	CreateTrunk(ctx context.Context, friendlyName, domainName string) (Trunk, error)
	FetchTrunk(ctx context.Context, sid string) (Trunk, error)
	CreateCredentialList(ctx context.Context, friendlyName string) (string, error)
	CreateCredential(ctx context.Context, listSID, username, password string) error
	AttachCredentialList(ctx context.Context, trunkSID, listSID string) error
	CreateOriginationURL(ctx context.Context, trunkSID string, origination OriginationURL) error
	// FindPhoneNumber returns the SID of the incoming number or ErrPhoneNumberNotFound
	FindPhoneNumber(ctx context.Context, e164 string) (string, error)
	AssignPhoneNumber(ctx context.Context, numberSID, trunkSID string) error
}

// InboundTrunk describes a LiveKit SIP trunk accepting calls for numbers
type InboundTrunk struct {
	Name    string
	Numbers []string
}

// DispatchRule places each inbound caller in its own room and dispatches an agent to it
type DispatchRule struct {
	Name       string
	RoomPrefix string
	TrunkIDs   []string
	AgentName  string
}

// OutboundTrunk describes a LiveKit SIP trunk dialing out through a provider
type OutboundTrunk struct {
	Name         string
	Address      string
	Numbers      []string
	AuthUsername string
	AuthPassword string
}

// AgentRuntimeAPI is the subset of the LiveKit SIP API provisioning needs
type AgentRuntimeAPI interface {
	CreateInboundTrunk(ctx context.Context, trunk InboundTrunk) (string, error)
	CreateDispatchRule(ctx context.Context, rule DispatchRule) (string, error)
	CreateOutboundTrunk(ctx context.Context, trunk OutboundTrunk) (string, error)
}

// Reporter receives human-facing progress
type Reporter interface {
	Step(n, total int, title string)
	Done(message string)
}

// DomainAsker supplies the termination domain when Twilio does not return one
type DomainAsker interface {
	Ask(label string) (string, error)
}

// Provisioner runs the linear provisioning sequence
type Provisioner struct {
	telephony TelephonyAPI
	runtime   AgentRuntimeAPI
	agentName string
	reporter  Reporter
	asker     DomainAsker
	logger    zerolog.Logger

	// refetchDelay is how long to wait before re-reading a trunk with no domain
	refetchDelay time.Duration
	sleep        func(time.Duration)
}

// Option configures a Provisioner
type Option func(*Provisioner)

// WithReporter sets the progress reporter
func WithReporter(r Reporter) Option {
	return func(p *Provisioner) { p.reporter = r }
}

// WithDomainAsker sets where the termination domain is asked for as a last resort
func WithDomainAsker(a DomainAsker) Option {
	return func(p *Provisioner) { p.asker = a }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(p *Provisioner) { p.logger = l }
}

// WithSleep replaces time.Sleep, for tests
func WithSleep(sleep func(time.Duration)) Option {
	return func(p *Provisioner) { p.sleep = sleep }
}

// New creates a Provisioner dispatching inbound calls to agentName
func New(telephony TelephonyAPI, runtime AgentRuntimeAPI, agentName string, opts ...Option) *Provisioner {
	p := &Provisioner{
		telephony:    telephony,
		runtime:      runtime,
		agentName:    agentName,
		reporter:     nopReporter{},
		logger:       zerolog.Nop(),
		refetchDelay: 2 * time.Second,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

const totalSteps = 6

// Run provisions every resource in order. The first provider error aborts
// the run and is returned unchanged; resources already created are kept.
func (p *Provisioner) Run(ctx context.Context, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	result := &Result{
		BaseName:    params.BaseName,
		PhoneNumber: params.PhoneNumber,
		AgentName:   p.agentName,
	}

	p.reporter.Step(1, totalSteps, "Setting up LiveKit for INBOUND calls")
	inboundID, err := p.runtime.CreateInboundTrunk(ctx, InboundTrunk{
		Name:    params.BaseName + "-inbound",
		Numbers: []string{params.PhoneNumber},
	})
	if err != nil {
		return nil, err
	}
	result.InboundTrunkID = inboundID
	p.reporter.Done(fmt.Sprintf("LiveKit inbound trunk created. ID: %s", inboundID))

	p.reporter.Step(2, totalSteps, "Creating dispatch rule bound to the inbound trunk")
	ruleID, err := p.runtime.CreateDispatchRule(ctx, DispatchRule{
		Name:       params.BaseName + "-rule",
		RoomPrefix: params.BaseName + "-",
		TrunkIDs:   []string{inboundID},
		AgentName:  p.agentName,
	})
	if err != nil {
		return nil, err
	}
	result.DispatchRuleID = ruleID
	p.reporter.Done(fmt.Sprintf("Dispatch rule created. ID: %s", ruleID))

	p.reporter.Step(3, totalSteps, "Creating Twilio SIP trunk")
	trunk, err := p.telephony.CreateTrunk(ctx, params.BaseName+"-trunk", params.BaseName+".pstn.twilio.com")
	if err != nil {
		return nil, err
	}
	termination, err := p.terminationDomain(ctx, trunk)
	if err != nil {
		return nil, err
	}
	result.TwilioTrunkSID = trunk.SID
	result.TerminationURI = termination
	p.reporter.Done(fmt.Sprintf("Twilio trunk created. SID: %s, Termination URI: %s", trunk.SID, termination))

	p.reporter.Step(4, totalSteps, "Setting up Twilio credential list")
	listSID, err := p.telephony.CreateCredentialList(ctx, params.BaseName+"-creds")
	if err != nil {
		return nil, err
	}
	if err := p.telephony.CreateCredential(ctx, listSID, params.SIPUsername, params.SIPPassword); err != nil {
		return nil, err
	}
	if err := p.telephony.AttachCredentialList(ctx, trunk.SID, listSID); err != nil {
		return nil, err
	}
	result.CredentialListSID = listSID
	p.reporter.Done("Twilio credential list created and associated with trunk")

	p.reporter.Step(5, totalSteps, "Setting up LiveKit for OUTBOUND calls")
	outboundID, err := p.runtime.CreateOutboundTrunk(ctx, OutboundTrunk{
		Name:         params.BaseName + "-outbound",
		Address:      termination,
		Numbers:      []string{params.PhoneNumber},
		AuthUsername: params.SIPUsername,
		AuthPassword: params.SIPPassword,
	})
	if err != nil {
		return nil, err
	}
	result.OutboundTrunkID = outboundID
	p.reporter.Done(fmt.Sprintf("LiveKit outbound trunk created. ID: %s", outboundID))

	p.reporter.Step(6, totalSteps, "Connecting Twilio to LiveKit")
	origination := OriginationURL{
		FriendlyName: params.BaseName + " LiveKit Origination",
		SIPURL:       "sip:" + params.LiveKitSIP,
		Weight:       1,
		Priority:     1,
		Enabled:      true,
	}
	if err := p.telephony.CreateOriginationURL(ctx, trunk.SID, origination); err != nil {
		return nil, err
	}
	result.OriginationURL = origination.SIPURL

	numberSID, err := p.telephony.FindPhoneNumber(ctx, params.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if err := p.telephony.AssignPhoneNumber(ctx, numberSID, trunk.SID); err != nil {
		return nil, err
	}
	p.reporter.Done("Twilio trunk linked to LiveKit and your phone number")

	result.CreatedAt = time.Now().UTC()
	p.logger.Info().
		Str("inbound_trunk_id", result.InboundTrunkID).
		Str("outbound_trunk_id", result.OutboundTrunkID).
		Str("twilio_trunk_sid", result.TwilioTrunkSID).
		Msg("Provisioning complete")

	return result, nil
}

// terminationDomain returns the trunk's domain, re-reading the trunk once and
// finally asking the operator when Twilio has not populated it yet.
func (p *Provisioner) terminationDomain(ctx context.Context, trunk Trunk) (string, error) {
	if trunk.DomainName != "" {
		return trunk.DomainName, nil
	}

	p.sleep(p.refetchDelay)
	fetched, err := p.telephony.FetchTrunk(ctx, trunk.SID)
	if err != nil {
		return "", err
	}
	if fetched.DomainName != "" {
		return fetched.DomainName, nil
	}

	if p.asker == nil {
		return "", fmt.Errorf("twilio trunk %s has no termination domain", trunk.SID)
	}
	domain, err := p.asker.Ask("Twilio did not return a trunk domain automatically. Enter the Termination SIP domain (e.g., your-trunk.pstn.twilio.com): ")
	if err != nil {
		return "", err
	}
	if domain == "" {
		return "", ErrMissingField
	}
	return domain, nil
}

type nopReporter struct{}

func (nopReporter) Step(int, int, string) {}
func (nopReporter) Done(string)           {}

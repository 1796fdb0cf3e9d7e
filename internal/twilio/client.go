// Package twilio adapts the Twilio REST API to the provisioning sequence.
package twilio

import (
	"context"
	"fmt"

	twiliogo "github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	trunking "github.com/twilio/twilio-go/rest/trunking/v1"

	"github.com/lexiqai/voice-agent/internal/config"
	"github.com/lexiqai/voice-agent/internal/provision"
)

type trunkingService interface {
	CreateTrunk(params *trunking.CreateTrunkParams) (*trunking.TrunkingV1Trunk, error)
	FetchTrunk(sid string) (*trunking.TrunkingV1Trunk, error)
	CreateCredentialList(trunkSid string, params *trunking.CreateCredentialListParams) (*trunking.TrunkingV1CredentialList, error)
	CreateOriginationUrl(trunkSid string, params *trunking.CreateOriginationUrlParams) (*trunking.TrunkingV1OriginationUrl, error)
}

type accountService interface {
	CreateSipCredentialList(params *api.CreateSipCredentialListParams) (*api.ApiV2010SipCredentialList, error)
	CreateSipCredential(credentialListSid string, params *api.CreateSipCredentialParams) (*api.ApiV2010SipCredential, error)
	ListIncomingPhoneNumber(params *api.ListIncomingPhoneNumberParams) ([]api.ApiV2010IncomingPhoneNumber, error)
	UpdateIncomingPhoneNumber(sid string, params *api.UpdateIncomingPhoneNumberParams) (*api.ApiV2010IncomingPhoneNumber, error)
}

// Client implements provision.TelephonyAPI on top of twilio-go
type Client struct {
	trunking trunkingService
	account  accountService
}

var _ provision.TelephonyAPI = (*Client)(nil)

// NewClient creates a client authenticated with the account SID and auth token
func NewClient(cfg config.TwilioConfig) *Client {
	rest := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{trunking: rest.TrunkingV1, account: rest.Api}
}

// CreateTrunk creates an Elastic SIP trunk
func (c *Client) CreateTrunk(ctx context.Context, friendlyName, domainName string) (provision.Trunk, error) {
	if err := ctx.Err(); err != nil {
		return provision.Trunk{}, err
	}
	params := &trunking.CreateTrunkParams{}
	params.SetFriendlyName(friendlyName)
	params.SetDomainName(domainName)

	trunk, err := c.trunking.CreateTrunk(params)
	if err != nil {
		return provision.Trunk{}, err
	}
	return toTrunk(trunk), nil
}

// FetchTrunk re-reads a trunk by SID
func (c *Client) FetchTrunk(ctx context.Context, sid string) (provision.Trunk, error) {
	if err := ctx.Err(); err != nil {
		return provision.Trunk{}, err
	}
	trunk, err := c.trunking.FetchTrunk(sid)
	if err != nil {
		return provision.Trunk{}, err
	}
	return toTrunk(trunk), nil
}

// CreateCredentialList creates an account-level SIP credential list
func (c *Client) CreateCredentialList(ctx context.Context, friendlyName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &api.CreateSipCredentialListParams{}
	params.SetFriendlyName(friendlyName)

	list, err := c.account.CreateSipCredentialList(params)
	if err != nil {
		return "", err
	}
	return deref(list.Sid), nil
}

// CreateCredential adds a username and password to a credential list
func (c *Client) CreateCredential(ctx context.Context, listSID, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &api.CreateSipCredentialParams{}
	params.SetUsername(username)
	params.SetPassword(password)

	_, err := c.account.CreateSipCredential(listSID, params)
	return err
}

// AttachCredentialList makes a trunk require the list's credentials for termination
func (c *Client) AttachCredentialList(ctx context.Context, trunkSID, listSID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &trunking.CreateCredentialListParams{}
	params.SetCredentialListSid(listSID)

	_, err := c.trunking.CreateCredentialList(trunkSID, params)
	return err
}

// CreateOriginationURL routes calls arriving on the trunk to a SIP endpoint
func (c *Client) CreateOriginationURL(ctx context.Context, trunkSID string, o provision.OriginationURL) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &trunking.CreateOriginationUrlParams{}
	params.SetFriendlyName(o.FriendlyName)
	params.SetSipUrl(o.SIPURL)
	params.SetWeight(o.Weight)
	params.SetPriority(o.Priority)
	params.SetEnabled(o.Enabled)

	_, err := c.trunking.CreateOriginationUrl(trunkSID, params)
	return err
}

// FindPhoneNumber looks up an incoming number on the account by its E.164 form
func (c *Client) FindPhoneNumber(ctx context.Context, e164 string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &api.ListIncomingPhoneNumberParams{}
	params.SetPhoneNumber(e164)
	params.SetLimit(1)

	numbers, err := c.account.ListIncomingPhoneNumber(params)
	if err != nil {
		return "", err
	}
	if len(numbers) == 0 || deref(numbers[0].Sid) == "" {
		return "", fmt.Errorf("%w: %s", provision.ErrPhoneNumberNotFound, e164)
	}
	return deref(numbers[0].Sid), nil
}

// AssignPhoneNumber points an incoming number at a trunk
func (c *Client) AssignPhoneNumber(ctx context.Context, numberSID, trunkSID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &api.UpdateIncomingPhoneNumberParams{}
	params.SetTrunkSid(trunkSID)

	_, err := c.account.UpdateIncomingPhoneNumber(numberSID, params)
	return err
}

func toTrunk(t *trunking.TrunkingV1Trunk) provision.Trunk {
	if t == nil {
		return provision.Trunk{}
	}
	return provision.Trunk{SID: deref(t.Sid), DomainName: deref(t.DomainName)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

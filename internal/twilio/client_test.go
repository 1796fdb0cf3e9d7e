package twilio

import (
	"context"
	"errors"
	"testing"

	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	trunking "github.com/twilio/twilio-go/rest/trunking/v1"

	"github.com/lexiqai/voice-agent/internal/provision"
)

func strPtr(s string) *string { return &s }

type fakeTrunking struct {
	createParams      *trunking.CreateTrunkParams
	credentialListSID string
	origination       *trunking.CreateOriginationUrlParams
	createErr         error
	domain            *string
}

func (f *fakeTrunking) CreateTrunk(params *trunking.CreateTrunkParams) (*trunking.TrunkingV1Trunk, error) {
	f.createParams = params
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &trunking.TrunkingV1Trunk{Sid: strPtr("TK123"), DomainName: f.domain}, nil
}

func (f *fakeTrunking) FetchTrunk(sid string) (*trunking.TrunkingV1Trunk, error) {
	return &trunking.TrunkingV1Trunk{Sid: strPtr(sid), DomainName: strPtr("fetched.pstn.twilio.com")}, nil
}

func (f *fakeTrunking) CreateCredentialList(trunkSid string, params *trunking.CreateCredentialListParams) (*trunking.TrunkingV1CredentialList, error) {
	f.credentialListSID = *params.CredentialListSid
	return &trunking.TrunkingV1CredentialList{}, nil
}

func (f *fakeTrunking) CreateOriginationUrl(trunkSid string, params *trunking.CreateOriginationUrlParams) (*trunking.TrunkingV1OriginationUrl, error) {
	f.origination = params
	return &trunking.TrunkingV1OriginationUrl{}, nil
}

type fakeAccount struct {
	numbers    []api.ApiV2010IncomingPhoneNumber
	lookedUp   string
	credential *api.CreateSipCredentialParams
	assigned   string
}

func (f *fakeAccount) CreateSipCredentialList(params *api.CreateSipCredentialListParams) (*api.ApiV2010SipCredentialList, error) {
	return &api.ApiV2010SipCredentialList{Sid: strPtr("CL123")}, nil
}

func (f *fakeAccount) CreateSipCredential(listSid string, params *api.CreateSipCredentialParams) (*api.ApiV2010SipCredential, error) {
	f.credential = params
	return &api.ApiV2010SipCredential{}, nil
}

func (f *fakeAccount) ListIncomingPhoneNumber(params *api.ListIncomingPhoneNumberParams) ([]api.ApiV2010IncomingPhoneNumber, error) {
	f.lookedUp = *params.PhoneNumber
	return f.numbers, nil
}

func (f *fakeAccount) UpdateIncomingPhoneNumber(sid string, params *api.UpdateIncomingPhoneNumberParams) (*api.ApiV2010IncomingPhoneNumber, error) {
	f.assigned = sid + "->" + *params.TrunkSid
	return &api.ApiV2010IncomingPhoneNumber{}, nil
}

func TestClient_CreateTrunk(t *testing.T) {
	tr := &fakeTrunking{domain: strPtr("my-agent.pstn.twilio.com")}
	c := &Client{trunking: tr, account: &fakeAccount{}}

	trunk, err := c.CreateTrunk(context.Background(), "my-agent-trunk", "my-agent.pstn.twilio.com")
	if err != nil {
		t.Fatalf("CreateTrunk() failed: %v", err)
	}
	if trunk.SID != "TK123" || trunk.DomainName != "my-agent.pstn.twilio.com" {
		t.Errorf("Unexpected trunk: %+v", trunk)
	}
	if *tr.createParams.FriendlyName != "my-agent-trunk" || *tr.createParams.DomainName != "my-agent.pstn.twilio.com" {
		t.Errorf("Unexpected params: %+v", tr.createParams)
	}
}

func TestClient_CreateTrunk_MissingDomain(t *testing.T) {
	c := &Client{trunking: &fakeTrunking{}, account: &fakeAccount{}}

	trunk, err := c.CreateTrunk(context.Background(), "n", "d")
	if err != nil {
		t.Fatalf("CreateTrunk() failed: %v", err)
	}
	if trunk.DomainName != "" {
		t.Errorf("Expected empty domain, got %s", trunk.DomainName)
	}

	fetched, err := c.FetchTrunk(context.Background(), trunk.SID)
	if err != nil {
		t.Fatalf("FetchTrunk() failed: %v", err)
	}
	if fetched.DomainName != "fetched.pstn.twilio.com" {
		t.Errorf("Unexpected fetched domain: %s", fetched.DomainName)
	}
}

func TestClient_ProviderErrorPassesThrough(t *testing.T) {
	restErr := &client.TwilioRestError{Code: 21450, Message: "Domain name already in use", Status: 400}
	c := &Client{trunking: &fakeTrunking{createErr: restErr}, account: &fakeAccount{}}

	_, err := c.CreateTrunk(context.Background(), "n", "d")
	var got *client.TwilioRestError
	if !errors.As(err, &got) || got.Code != 21450 {
		t.Errorf("Expected TwilioRestError 21450, got %v", err)
	}
}

func TestClient_Credentials(t *testing.T) {
	tr := &fakeTrunking{}
	acc := &fakeAccount{}
	c := &Client{trunking: tr, account: acc}
	ctx := context.Background()

	listSID, err := c.CreateCredentialList(ctx, "my-agent-creds")
	if err != nil || listSID != "CL123" {
		t.Fatalf("CreateCredentialList() = %s, %v", listSID, err)
	}
	if err := c.CreateCredential(ctx, listSID, "user", "Abcdef123!@#"); err != nil {
		t.Fatalf("CreateCredential() failed: %v", err)
	}
	if *acc.credential.Username != "user" || *acc.credential.Password != "Abcdef123!@#" {
		t.Errorf("Unexpected credential params: %+v", acc.credential)
	}
	if err := c.AttachCredentialList(ctx, "TK123", listSID); err != nil {
		t.Fatalf("AttachCredentialList() failed: %v", err)
	}
	if tr.credentialListSID != "CL123" {
		t.Errorf("Expected CL123 attached, got %s", tr.credentialListSID)
	}
}

func TestClient_CreateOriginationURL(t *testing.T) {
	tr := &fakeTrunking{}
	c := &Client{trunking: tr, account: &fakeAccount{}}

	err := c.CreateOriginationURL(context.Background(), "TK123", provision.OriginationURL{
		FriendlyName: "LiveKit",
		SIPURL:       "sip:host.sip.livekit.cloud",
		Weight:       1,
		Priority:     1,
		Enabled:      true,
	})
	if err != nil {
		t.Fatalf("CreateOriginationURL() failed: %v", err)
	}
	o := tr.origination
	if *o.SipUrl != "sip:host.sip.livekit.cloud" || *o.Weight != 1 || *o.Priority != 1 || !*o.Enabled {
		t.Errorf("Unexpected origination params: %+v", o)
	}
}

func TestClient_PhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		numbers []api.ApiV2010IncomingPhoneNumber
		wantSID string
		wantErr error
	}{
		{"found", []api.ApiV2010IncomingPhoneNumber{{Sid: strPtr("PN123")}}, "PN123", nil},
		{"not on account", nil, "", provision.ErrPhoneNumberNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &fakeAccount{numbers: tt.numbers}
			c := &Client{trunking: &fakeTrunking{}, account: acc}

			sid, err := c.FindPhoneNumber(context.Background(), "+15551234567")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if sid != tt.wantSID {
				t.Errorf("Expected %s, got %s", tt.wantSID, sid)
			}
			if acc.lookedUp != "+15551234567" {
				t.Errorf("Expected lookup by E.164, got %s", acc.lookedUp)
			}
		})
	}

	acc := &fakeAccount{}
	c := &Client{trunking: &fakeTrunking{}, account: acc}
	if err := c.AssignPhoneNumber(context.Background(), "PN123", "TK123"); err != nil {
		t.Fatalf("AssignPhoneNumber() failed: %v", err)
	}
	if acc.assigned != "PN123->TK123" {
		t.Errorf("Unexpected assignment: %s", acc.assigned)
	}
}

func TestClient_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := &fakeTrunking{}
	c := &Client{trunking: tr, account: &fakeAccount{}}
	if _, err := c.CreateTrunk(ctx, "n", "d"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if tr.createParams != nil {
		t.Error("Expected no API call after cancellation")
	}
}

package provision

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMissingField is returned when the operator leaves a required field empty.
var ErrMissingField = errors.New("all fields are required")

// Params are the operator-supplied inputs for one provisioning run
type Params struct {
	BaseName    string
	PhoneNumber string // E.164
	SIPUsername string
	SIPPassword string
	LiveKitSIP  string // host part of the LiveKit SIP URI, without a sip: scheme
}

// Prompter asks the operator for input line by line
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter creates a prompter reading answers from in and writing questions to out
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints label and returns the trimmed answer
func (p *Prompter) Ask(label string) (string, error) {
	line, err := p.readLine(label)
	return strings.TrimSpace(line), err
}

// AskSecret is Ask without trimming: only the line ending is dropped, so
// surrounding spaces stay part of the answer
func (p *Prompter) AskSecret(label string) (string, error) {
	line, err := p.readLine(label)
	return strings.TrimRight(line, "\r\n"), err
}

func (p *Prompter) readLine(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %q: %w", strings.TrimSpace(label), err)
	}
	return line, nil
}

// CollectParams asks for the five provisioning inputs. The password is
// re-prompted until it satisfies ValidatePassword; an empty field aborts.
func (p *Prompter) CollectParams() (Params, error) {
	var params Params
	var err error

	if params.BaseName, err = p.Ask("Enter a base name for resources (e.g., 'my-agent'): "); err != nil {
		return Params{}, err
	}
	if params.PhoneNumber, err = p.Ask("Enter your Twilio phone number in E.164 format (e.g., +15551234567): "); err != nil {
		return Params{}, err
	}
	if params.SIPUsername, err = p.Ask("Enter a NEW username for SIP authentication: "); err != nil {
		return Params{}, err
	}

	for {
		params.SIPPassword, err = p.AskSecret("Enter a NEW secure password for SIP authentication: ")
		if err != nil {
			return Params{}, err
		}
		if params.SIPPassword == "" {
			break
		}
		verr := ValidatePassword(params.SIPPassword)
		if verr == nil {
			break
		}
		fmt.Fprintf(p.out, "%v. Please try again.\n", verr)
	}

	sipURI, err := p.Ask("Enter your LiveKit SIP URI (e.g., 3kxm9r7vbn4q.sip.livekit.cloud): ")
	if err != nil {
		return Params{}, err
	}
	params.LiveKitSIP = NormalizeSIPURI(sipURI)

	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

// Validate checks every field is present and the password meets the policy
func (p Params) Validate() error {
	if p.BaseName == "" || p.PhoneNumber == "" || p.SIPUsername == "" || p.SIPPassword == "" || p.LiveKitSIP == "" {
		return ErrMissingField
	}
	return ValidatePassword(p.SIPPassword)
}

// NormalizeSIPURI strips a leading sip:// or sip: scheme
func NormalizeSIPURI(uri string) string {
	uri = strings.TrimSpace(uri)
	uri = strings.TrimPrefix(uri, "sip://")
	uri = strings.TrimPrefix(uri, "sip:")
	return uri
}

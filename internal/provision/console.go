package provision

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	stepStyle  = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	codeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Console writes styled progress for an operator at a terminal
type Console struct {
	out io.Writer
}

// NewConsole creates a Console writing to out
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Banner prints the run header
func (c *Console) Banner() {
	fmt.Fprintln(c.out, titleStyle.Render("Twilio & LiveKit Full Telephony Setup"))
	fmt.Fprintln(c.out, strings.Repeat("-", 60))
}

// Step implements Reporter
func (c *Console) Step(n, total int, title string) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, stepStyle.Render(fmt.Sprintf("[Step %d/%d] %s...", n, total, title)))
}

// Done implements Reporter
func (c *Console) Done(message string) {
	fmt.Fprintln(c.out, okStyle.Render("✓ "+message))
}

// Fail prints a fatal error message as the provider reported it
func (c *Console) Fail(message string) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, errStyle.Render("✗ "+message))
}

// Summary prints the identifiers the operator needs and where they were saved
func (c *Console) Summary(r *Result, savedTo string) {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, strings.Repeat("=", 60))
	fmt.Fprintln(c.out, titleStyle.Render("Full Telephony Setup Complete!"))
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "LiveKit inbound trunk:  %s\n", r.InboundTrunkID)
	fmt.Fprintf(c.out, "LiveKit dispatch rule:  %s\n", r.DispatchRuleID)
	fmt.Fprintf(c.out, "LiveKit outbound trunk: %s\n", codeStyle.Render(r.OutboundTrunkID))
	fmt.Fprintf(c.out, "Twilio trunk:           %s (%s)\n", r.TwilioTrunkSID, r.TerminationURI)
	fmt.Fprintln(c.out)
	if savedTo != "" {
		fmt.Fprintf(c.out, "Identifiers saved to %s; the agent reads the outbound trunk id from there.\n", savedTo)
		return
	}
	fmt.Fprintf(c.out, "Set LIVEKIT_OUTBOUND_TRUNK_ID=%s for the agent.\n", r.OutboundTrunkID)
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/lexiqai/voice-agent/internal/config"
	"github.com/lexiqai/voice-agent/internal/lkapi"
	"github.com/lexiqai/voice-agent/internal/observability"
	"github.com/lexiqai/voice-agent/internal/provision"
	"github.com/lexiqai/voice-agent/internal/twilio"
)

// clientsFunc builds the provider clients for a loaded configuration
type clientsFunc func(cfg *config.ProvisionConfig) (provision.TelephonyAPI, provision.AgentRuntimeAPI)

func providerClients(cfg *config.ProvisionConfig) (provision.TelephonyAPI, provision.AgentRuntimeAPI) {
	return twilio.NewClient(cfg.Twilio), lkapi.New(cfg.LiveKit)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Stdin, os.Stdout, providerClients)
	stop()
	os.Exit(code)
}

// run returns the process exit code: 0 once every resource exists, 1 on
// bad configuration, a missing answer or any provider error
func run(ctx context.Context, in io.Reader, out io.Writer, clients clientsFunc) int {
	console := provision.NewConsole(out)

	cfg, err := config.LoadProvision()
	if err != nil {
		console.Fail(fmt.Sprintf("Failed to load configuration: %v", err))
		return 1
	}

	observability.InitLogger(cfg.LogLevel, false)
	logger := observability.WithCorrelationID("")

	console.Banner()

	prompter := provision.NewPrompter(in, out)
	params, err := prompter.CollectParams()
	if err != nil {
		console.Fail(err.Error())
		return 1
	}

	telephony, runtime := clients(cfg)
	p := provision.New(
		telephony,
		runtime,
		cfg.AgentName,
		provision.WithReporter(console),
		provision.WithDomainAsker(prompter),
		provision.WithLogger(logger),
	)

	result, err := p.Run(ctx, params)
	if err != nil {
		logger.Error().Err(err).Msg("Provisioning failed")
		console.Fail(lkapi.ErrorMessage(err))
		return 1
	}

	savedTo := cfg.Output
	if err := result.Save(cfg.Output); err != nil {
		logger.Warn().Err(err).Str("path", cfg.Output).Msg("Failed to save provisioning result")
		savedTo = ""
	}
	console.Summary(result, savedTo)
	return 0
}

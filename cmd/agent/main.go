package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lexiqai/voice-agent/internal/config"
	"github.com/lexiqai/voice-agent/internal/lkapi"
	"github.com/lexiqai/voice-agent/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "agent",
	Short: "Voice agent worker for LiveKit SIP calls",
	Long: `agent registers with the LiveKit agent dispatch service and answers
every call routed to it with the Deepgram, Groq and Cartesia pipeline.`,
	SilenceUsage: true,
}

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run the worker with debug logging on the console",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), func(cfg *config.AgentConfig) {
			cfg.LogLevel = "debug"
			cfg.LogPretty = true
		})
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), nil)
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Place an outbound call through the running worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		phone, _ := cmd.Flags().GetString("phone")
		if phone == "" {
			return fmt.Errorf("--phone is required")
		}

		cfg, err := config.LoadAgent()
		if err != nil {
			return err
		}
		observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
		logger := observability.GetLogger()

		room := lkapi.OutboundRoomName(cfg.AgentName + "-")
		id, err := lkapi.New(cfg.LiveKit).DispatchOutboundCall(cmd.Context(), cfg.AgentName, room, phone)
		if err != nil {
			return fmt.Errorf("failed to dispatch call: %s", lkapi.ErrorMessage(err))
		}
		logger.Info().
			Str("dispatch_id", id).
			Str("room", room).
			Str("phone_number", phone).
			Msg("Outbound call dispatched")
		return nil
	},
}

func init() {
	dispatchCmd.Flags().String("phone", "", "callee number in E.164 format")
	rootCmd.AddCommand(devCmd, startCmd, dispatchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

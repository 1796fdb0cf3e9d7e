package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-agent/internal/agent"
	"github.com/lexiqai/voice-agent/internal/config"
	"github.com/lexiqai/voice-agent/internal/lkapi"
	"github.com/lexiqai/voice-agent/internal/observability"
	"github.com/lexiqai/voice-agent/internal/pipeline"
	"github.com/lexiqai/voice-agent/internal/recording"
	"github.com/lexiqai/voice-agent/internal/telephony"
	"github.com/lexiqai/voice-agent/internal/worker"
)

// serve loads configuration, builds the pipeline and runs the worker and
// the HTTP server until ctx is done
func serve(ctx context.Context, override func(*config.AgentConfig)) error {
	// Configuration errors surface before anything listens
	cfg, err := config.LoadAgent()
	if err != nil {
		return err
	}
	if override != nil {
		override(cfg)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("agent_name", cfg.AgentName).
		Str("livekit_url", cfg.LiveKit.URL).
		Str("port", cfg.Port).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice agent starting")

	srv, err := newAgentServer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.Port, err)
	}
	return srv.run(ctx, ln)
}

// agentServer is the assembled process: the LiveKit worker plus the HTTP
// surface for health, metrics and Twilio media streams
type agentServer struct {
	worker *worker.Worker
	http   *http.Server
	logger zerolog.Logger
}

func newAgentServer(ctx context.Context, cfg *config.AgentConfig, logger zerolog.Logger) (*agentServer, error) {
	p, err := pipeline.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	lk := lkapi.New(cfg.LiveKit)
	rec, err := recording.NewSink(ctx, cfg, lk)
	if err != nil {
		return nil, err
	}

	entrypoint := agent.New(p, lk, rec, cfg)
	w := worker.New(worker.Options{
		URL:       cfg.LiveKit.URL,
		APIKey:    cfg.LiveKit.APIKey,
		APISecret: cfg.LiveKit.APISecret,
		AgentName: cfg.AgentName,
	}, entrypoint.HandleJob, logger)

	mux, err := newMux(cfg, p, rec, w, logger)
	if err != nil {
		return nil, err
	}

	return &agentServer{
		worker: w,
		http: &http.Server{
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}, nil
}

// run serves on ln until ctx is done or either half fails. Calls in
// progress are drained by the worker before the HTTP server shuts down.
func (s *agentServer) run(ctx context.Context, ln net.Listener) error {
	logger := s.logger

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Msg("Server listening")
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	workerErr := make(chan error, 1)
	go func() { workerErr <- s.worker.Run(workerCtx) }()

	var runErr error
	workerDone := false
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case err := <-serverErr:
		runErr = fmt.Errorf("server failed: %w", err)
	case err := <-workerErr:
		runErr = fmt.Errorf("worker stopped: %w", err)
		workerDone = true
	}

	// stops new jobs; running calls keep their own context until they end
	// or the worker's drain timeout passes
	stopWorker()
	if !workerDone {
		<-workerErr
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Voice agent exited")
	return runErr
}

func newMux(cfg *config.AgentConfig, p *pipeline.Pipeline, rec *recording.Sink, w *worker.Worker, logger zerolog.Logger) (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"livekit_worker": func(ctx context.Context) (bool, error) {
			if !w.Connected() {
				return false, worker.ErrNotConnected
			}
			return true, nil
		},
	}))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	mux.Handle(telephony.StreamPath, telephony.NewStreamHandler(p, rec))
	if cfg.PublicURL != "" {
		streamURL, err := telephony.StreamURL(cfg.PublicURL)
		if err != nil {
			return nil, err
		}
		mux.HandleFunc("/twiml", telephony.TwiMLHandler(streamURL, logger))
		logger.Info().Str("stream_url", streamURL).Msg("Twilio media streams enabled at /twiml")
	}
	return mux, nil
}

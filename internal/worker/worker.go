// Package worker registers this process with the LiveKit agent dispatch
// service and runs a job per assigned call.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/livekit"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"

	"github.com/lexiqai/voice-agent/internal/lkapi"
	"github.com/lexiqai/voice-agent/internal/observability"
	"github.com/lexiqai/voice-agent/internal/resilience"
)

// ErrNotConnected is returned when a message is sent without a live socket
var ErrNotConnected = errors.New("worker is not connected")

const (
	registerTimeout     = 10 * time.Second
	defaultDrainTimeout = 2 * time.Minute
)

// JobHandler runs one call. url and token join the job's room.
type JobHandler func(ctx context.Context, job *livekit.Job, url, token string) error

// Options configure the worker
type Options struct {
	URL          string
	APIKey       string
	APISecret    string
	AgentName    string
	Version      string
	PingInterval time.Duration
	// Reconnect bounds re-registration after the socket drops. Running
	// jobs are not affected while it retries.
	Reconnect *resilience.ReconnectConfig
	// DrainTimeout is how long Run waits for running jobs after ctx is
	// done before hanging them up
	DrainTimeout time.Duration
}

// DefaultReconnectConfig keeps retrying registration for about half an
// hour, long enough to ride out a LiveKit outage
func DefaultReconnectConfig() *resilience.ReconnectConfig {
	return &resilience.ReconnectConfig{
		MaxAttempts: 70,
		Backoff:     time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// Worker holds the registration socket and the jobs it was assigned
type Worker struct {
	opts    Options
	handler JobHandler
	logger  zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	workerID  string
	connected bool
	jobs      map[string]context.CancelFunc
	wg        sync.WaitGroup
	writeMu   sync.Mutex

	// jobs outlive the registration socket and the ctx given to Run
	jobsCtx  context.Context
	stopJobs context.CancelFunc
}

// New creates a worker. Run starts it.
func New(opts Options, handler JobHandler, logger zerolog.Logger) *Worker {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 10 * time.Second
	}
	if opts.Version == "" {
		opts.Version = observability.Version
	}
	if opts.Reconnect == nil {
		opts.Reconnect = DefaultReconnectConfig()
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	return &Worker{
		opts:     opts,
		handler:  handler,
		logger:   logger.With().Str("component", "worker").Str("agent_name", opts.AgentName).Logger(),
		jobs:     make(map[string]context.CancelFunc),
		jobsCtx:  jobsCtx,
		stopJobs: stopJobs,
	}
}

// agentURL turns a project URL into the worker endpoint
func agentURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid LiveKit URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid LiveKit URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/agent"
	return u.String(), nil
}

// Connected reports whether the worker is registered right now
func (w *Worker) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// Run registers and serves until ctx is done, reconnecting when the socket
// drops. Once ctx is done no new jobs are accepted; running jobs get
// DrainTimeout to finish before they are cancelled.
func (w *Worker) Run(ctx context.Context) error {
	defer w.drain()

	for {
		var conn *websocket.Conn
		err := resilience.Reconnect(ctx, func(ctx context.Context) error {
			c, err := w.register(ctx)
			if err != nil {
				return err
			}
			conn = c
			return nil
		}, w.opts.Reconnect, w.logger)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err = w.serve(ctx, conn)
		w.setConn(nil, false)
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn().Err(err).Msg("Worker connection lost, reconnecting")
	}
}

func (w *Worker) drain() {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	default:
	}
	w.logger.Info().Dur("timeout", w.opts.DrainTimeout).Msg("Waiting for running jobs")

	select {
	case <-done:
	case <-time.After(w.opts.DrainTimeout):
		w.logger.Warn().Msg("Running jobs did not finish in time, hanging up")
		w.stopJobs()
		<-done
	}
}

func (w *Worker) register(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := agentURL(w.opts.URL)
	if err != nil {
		return nil, err
	}
	token, err := lkapi.WorkerToken(w.opts.APIKey, w.opts.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker token: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial agent endpoint: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial agent endpoint: %w", err)
	}
	w.setConn(conn, false)

	err = w.send(&livekit.WorkerMessage{Message: &livekit.WorkerMessage_Register{
		Register: &livekit.RegisterWorkerRequest{
			Type:      livekit.JobType_JT_ROOM,
			AgentName: w.opts.AgentName,
			Version:   w.opts.Version,
		},
	}})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send registration: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(registerTimeout))
	msg, err := readServerMessage(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read registration response: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	reg := msg.GetRegister()
	if reg == nil {
		conn.Close()
		return nil, fmt.Errorf("expected registration response, got %T", msg.GetMessage())
	}

	w.mu.Lock()
	w.workerID = reg.GetWorkerId()
	w.mu.Unlock()
	w.setConn(conn, true)

	w.logger.Info().Str("worker_id", reg.GetWorkerId()).Msg("Worker registered")
	return conn, nil
}

func (w *Worker) setConn(conn *websocket.Conn, connected bool) {
	w.mu.Lock()
	w.conn = conn
	w.connected = connected
	w.mu.Unlock()
	observability.SetWorkerConnected(connected)
}

func readServerMessage(conn *websocket.Conn) (*livekit.ServerMessage, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg livekit.ServerMessage
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid server message: %w", err)
	}
	return &msg, nil
}

func (w *Worker) send(msg *livekit.WorkerMessage) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return err
	}

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, data)
}

func (w *Worker) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			w.writeMu.Lock()
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			w.writeMu.Unlock()
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()
	go w.pingLoop(done)

	for {
		msg, err := readServerMessage(conn)
		if err != nil {
			return err
		}
		w.handle(msg)
	}
}

func (w *Worker) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			err := w.send(&livekit.WorkerMessage{Message: &livekit.WorkerMessage_Ping{
				Ping: &livekit.WorkerPing{Timestamp: time.Now().UnixMilli()},
			}})
			if err != nil {
				w.logger.Debug().Err(err).Msg("Failed to send ping")
			}
		}
	}
}

func (w *Worker) handle(msg *livekit.ServerMessage) {
	switch m := msg.GetMessage().(type) {
	case *livekit.ServerMessage_Availability:
		w.handleAvailability(m.Availability)
	case *livekit.ServerMessage_Assignment:
		w.startJob(m.Assignment)
	case *livekit.ServerMessage_Termination:
		w.terminate(m.Termination.GetJobId())
	case *livekit.ServerMessage_Pong:
		w.logger.Trace().Int64("timestamp", m.Pong.GetTimestamp()).Msg("Pong")
	default:
		w.logger.Debug().Msgf("Ignoring server message %T", m)
	}
}

// handleAvailability accepts every job; the runtime does the load balancing
func (w *Worker) handleAvailability(req *livekit.AvailabilityRequest) {
	job := req.GetJob()
	w.logger.Info().Str("job_id", job.GetId()).Str("room", job.GetRoom().GetName()).Msg("Job offered")

	err := w.send(&livekit.WorkerMessage{Message: &livekit.WorkerMessage_Availability{
		Availability: &livekit.AvailabilityResponse{
			JobId:     job.GetId(),
			Available: true,
		},
	}})
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", job.GetId()).Msg("Failed to accept job")
	}
}

func (w *Worker) startJob(assignment *livekit.JobAssignment) {
	job := assignment.GetJob()
	jobURL := assignment.GetUrl()
	if jobURL == "" {
		jobURL = w.opts.URL
	}

	jobCtx, cancel := context.WithCancel(w.jobsCtx)
	w.mu.Lock()
	w.jobs[job.GetId()] = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.jobs, job.GetId())
			w.mu.Unlock()
			cancel()
		}()

		w.updateJob(job.GetId(), livekit.JobStatus_JS_RUNNING, "")
		err := w.runJob(jobCtx, job, jobURL, assignment.GetToken())
		if err != nil {
			w.logger.Error().Err(err).Str("job_id", job.GetId()).Msg("Job failed")
			w.updateJob(job.GetId(), livekit.JobStatus_JS_FAILED, err.Error())
			observability.RecordWorkerJob("failed")
			return
		}
		w.updateJob(job.GetId(), livekit.JobStatus_JS_SUCCESS, "")
		observability.RecordWorkerJob("success")
	}()
}

func (w *Worker) runJob(ctx context.Context, job *livekit.Job, url, token string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return w.handler(ctx, job, url, token)
}

func (w *Worker) updateJob(jobID string, status livekit.JobStatus, errMsg string) {
	err := w.send(&livekit.WorkerMessage{Message: &livekit.WorkerMessage_UpdateJob{
		UpdateJob: &livekit.UpdateJobStatus{
			JobId:  jobID,
			Status: status,
			Error:  errMsg,
		},
	}})
	if err != nil {
		w.logger.Warn().Err(err).Str("job_id", jobID).Str("status", status.String()).Msg("Failed to report job status")
	}
}

func (w *Worker) terminate(jobID string) {
	w.mu.Lock()
	cancel, ok := w.jobs[jobID]
	w.mu.Unlock()
	if ok {
		w.logger.Info().Str("job_id", jobID).Msg("Job terminated by server")
		cancel()
	}
}

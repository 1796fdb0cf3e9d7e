package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Call metrics
	activeCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_agent_active_calls",
		Help: "Number of active call sessions",
	})

	totalCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_calls_total",
		Help: "Total number of call sessions handled",
	}, []string{"direction"}) // inbound, outbound, media_stream

	callDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_agent_call_duration_seconds",
		Help:    "Duration of call sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// Pipeline stage metrics
	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_stage_requests_total",
		Help: "Total number of pipeline stage requests",
	}, []string{"stage", "status"}) // stage: stt, llm, tts

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_agent_stage_latency_seconds",
		Help:    "Pipeline stage latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	// Tool metrics
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_tool_calls_total",
		Help: "Total number of tool invocations",
	}, []string{"tool", "status"})

	// Recording metrics
	recordingOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_recording_operations_total",
		Help: "Recording egress starts and transcript uploads",
	}, []string{"kind", "status"})

	// Worker metrics
	workerJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_worker_jobs_total",
		Help: "Jobs assigned to this worker by final status",
	}, []string{"status"})

	workerConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_agent_worker_connected",
		Help: "1 while the worker is registered with the agent runtime",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_agent_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// Pipeline stage names used as metric labels
const (
	StageSTT = "stt"
	StageLLM = "llm"
	StageTTS = "tts"
)

// Metrics tracks metrics for a single call
type Metrics struct {
	callID    string
	startTime time.Time

	mu     sync.Mutex
	stages map[string]time.Time
}

// NewCallMetrics creates a new metrics tracker for a call
func NewCallMetrics(callID string) *Metrics {
	return &Metrics{
		callID:    callID,
		startTime: time.Now(),
		stages:    make(map[string]time.Time),
	}
}

// RecordCallStart records the start of a call
func (m *Metrics) RecordCallStart(direction string) {
	activeCalls.Inc()
	totalCalls.WithLabelValues(direction).Inc()
}

// RecordCallEnd records the end of a call
func (m *Metrics) RecordCallEnd() {
	activeCalls.Dec()
	callDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordStageStart marks the start of a pipeline stage
func (m *Metrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stages[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd records latency since the matching RecordStageStart and the outcome
func (m *Metrics) RecordStageEnd(stage string, success bool) {
	m.mu.Lock()
	start, ok := m.stages[stage]
	delete(m.stages, stage)
	m.mu.Unlock()

	if ok {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
	stageRequests.WithLabelValues(stage, statusLabel(success)).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordError records an error outside of a call
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordToolCall counts one tool invocation
func RecordToolCall(tool string, success bool) {
	toolCalls.WithLabelValues(tool, statusLabel(success)).Inc()
}

// RecordRecording counts a recording operation; kind is "egress" or "transcript"
func RecordRecording(kind string, success bool) {
	recordingOps.WithLabelValues(kind, statusLabel(success)).Inc()
}

// RecordWorkerJob counts a finished job by status
func RecordWorkerJob(status string) {
	workerJobs.WithLabelValues(status).Inc()
}

// SetWorkerConnected updates the worker registration gauge
func SetWorkerConnected(connected bool) {
	if connected {
		workerConnected.Set(1)
		return
	}
	workerConnected.Set(0)
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

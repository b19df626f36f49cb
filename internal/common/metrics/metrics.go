// internal/common/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mortgage-underwriting/internal/underwriting/casestate"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

const jobCompleted = "completed"

// Recorder collects underwriting metrics. It satisfies the workflow engine's
// Observer and the generator client's Recorder.
type Recorder struct {
	backend string

	cases       *prometheus.CounterVec
	stages      *prometheus.HistogramVec
	stageErrors *prometheus.CounterVec
	riskScore   prometheus.Histogram
	checkpoints *prometheus.CounterVec
	llmRequests *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec

	jobsCompleted *prometheus.CounterVec
	jobsFailed    *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsActive    *prometheus.GaugeVec
}

// NewRecorder registers the underwriting collectors on reg. checkpointBackend
// labels every checkpoint observation.
func NewRecorder(reg prometheus.Registerer, checkpointBackend string) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		backend: checkpointBackend,
		cases: f.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_cases_total",
			Help: "Cases decided, by final decision",
		}, []string{"decision"}),
		stages: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "underwriting_stage_duration_seconds",
			Help:    "Duration of each underwriting stage",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		stageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_stage_failures_total",
			Help: "Stage executions that returned an error",
		}, []string{"stage"}),
		riskScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "underwriting_risk_score",
			Help:    "Distribution of computed risk scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		checkpoints: f.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_checkpoints_total",
			Help: "Checkpoint writes, by backend and result",
		}, []string{"backend", "result"}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "underwriting_llm_requests_total",
			Help: "Text generation calls, by provider and result",
		}, []string{"provider", "result"}),
		llmDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "underwriting_llm_request_duration_seconds",
			Help:    "Latency of text generation calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		jobsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		}, []string{"task_type"}),
		jobsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		}, []string{"task_type", "outcome"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		}, []string{"task_type"}),
		jobsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		}, []string{"task_type"}),
	}
}

func (r *Recorder) ObserveStage(stage casestate.Stage, duration time.Duration, err error) {
	r.stages.WithLabelValues(string(stage)).Observe(duration.Seconds())
	if err != nil {
		r.stageErrors.WithLabelValues(string(stage)).Inc()
	}
}

func (r *Recorder) ObserveCheckpoint(err error) {
	r.checkpoints.WithLabelValues(r.backend, result(err)).Inc()
}

func (r *Recorder) ObserveDecision(s casestate.State) {
	r.cases.WithLabelValues(string(s.FinalDecision)).Inc()
	if s.RiskScore != nil {
		r.riskScore.Observe(float64(*s.RiskScore))
	}
}

func (r *Recorder) RecordLLMRequest(provider, result string, duration time.Duration) {
	r.llmRequests.WithLabelValues(provider, result).Inc()
	r.llmDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (r *Recorder) JobStarted(taskType string) {
	r.jobsActive.WithLabelValues(taskType).Inc()
}

// JobFinished records a handled job. Anything but "completed" counts as a
// failure under its outcome label.
func (r *Recorder) JobFinished(taskType, outcome string, duration time.Duration) {
	r.jobsActive.WithLabelValues(taskType).Dec()
	r.jobDuration.WithLabelValues(taskType).Observe(duration.Seconds())
	if outcome == jobCompleted {
		r.jobsCompleted.WithLabelValues(taskType).Inc()
		return
	}
	r.jobsFailed.WithLabelValues(taskType, outcome).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

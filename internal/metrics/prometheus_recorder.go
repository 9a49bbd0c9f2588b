package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration    *prom.HistogramVec
	runDuration      prom.Histogram
	stageResults     *prom.CounterVec
	runOutcome       *prom.CounterVec
	retries          *prom.CounterVec
	retriesExhausted *prom.CounterVec
	artifactSize     prom.Histogram
	deployResults    *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "docship",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docship",
			Name:      "run_duration_seconds",
			Help:      "Total pipeline run duration",
			Buckets:   prom.DefBuckets,
		}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docship",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		runOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docship",
			Name:      "run_outcomes_total",
			Help:      "Pipeline run outcomes by final status",
		}, []string{"outcome"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docship",
			Name:      "stage_retries_total",
			Help:      "Total stage retries (transient failures)",
		}, []string{"stage"}),
		retriesExhausted: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docship",
			Name:      "stage_retry_exhausted_total",
			Help:      "Count of stages where retries were exhausted",
		}, []string{"stage"}),
		artifactSize: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docship",
			Name:      "artifact_size_bytes",
			Help:      "Packed site artifact size",
			Buckets:   prom.ExponentialBuckets(1<<20, 2, 12),
		}),
		deployResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docship",
			Name:      "deploy_results_total",
			Help:      "Deployment results by success/failure",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.stageDuration, pr.runDuration, pr.stageResults, pr.runOutcome,
		pr.retries, pr.retriesExhausted, pr.artifactSize, pr.deployResults)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncStageRetry(stage string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncStageRetryExhausted(stage string) {
	if p == nil || p.retriesExhausted == nil {
		return
	}
	p.retriesExhausted.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) ObserveArtifactSize(bytes int64) {
	if p == nil || p.artifactSize == nil {
		return
	}
	p.artifactSize.Observe(float64(bytes))
}

func (p *PrometheusRecorder) IncDeployResult(success bool) {
	if p == nil || p.deployResults == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.deployResults.WithLabelValues(res).Inc()
}

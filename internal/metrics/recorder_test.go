package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("compose", time.Second)
	r.ObserveRunDuration(time.Second)
	r.IncStageResult("compose", ResultSuccess)
	r.IncRunOutcome("success")
	r.IncStageRetry("publish")
	r.IncStageRetryExhausted("publish")
	r.ObserveArtifactSize(1024)
	r.IncDeployResult(true)
}

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.IncStageResult("compose", ResultSuccess)
	r.IncStageResult("compose", ResultSuccess)
	r.IncStageResult("publish", ResultFatal)
	r.IncRunOutcome("success")
	r.IncStageRetry("publish")
	r.IncDeployResult(true)
	r.IncDeployResult(false)
	r.ObserveStageDuration("compose", 250*time.Millisecond)
	r.ObserveRunDuration(time.Second)
	r.ObserveArtifactSize(2 << 20)

	if got := testutil.ToFloat64(r.stageResults.WithLabelValues("compose", "success")); got != 2 {
		t.Fatalf("expected 2 compose successes got %v", got)
	}
	if got := testutil.ToFloat64(r.stageResults.WithLabelValues("publish", "fatal")); got != 1 {
		t.Fatalf("expected 1 publish fatal got %v", got)
	}
	if got := testutil.ToFloat64(r.runOutcome.WithLabelValues("success")); got != 1 {
		t.Fatalf("expected 1 success outcome got %v", got)
	}
	if got := testutil.ToFloat64(r.retries.WithLabelValues("publish")); got != 1 {
		t.Fatalf("expected 1 retry got %v", got)
	}
	if got := testutil.ToFloat64(r.deployResults.WithLabelValues("success")); got != 1 {
		t.Fatalf("expected 1 deploy success got %v", got)
	}
	if got := testutil.ToFloat64(r.deployResults.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 deploy failure got %v", got)
	}
}

func TestPrometheusRecorderNilSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.IncStageResult("compose", ResultSuccess)
	r.ObserveRunDuration(time.Second)
	r.IncDeployResult(false)
}

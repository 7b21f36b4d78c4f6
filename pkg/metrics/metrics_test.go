package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronMetricsRecordsRunsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)
	job := "payment-timeout"
	at := time.Unix(1767225600, 0)
	m.ObserveRun(job, OutcomeSuccess, 250*time.Millisecond, at)
	m.ObserveRun(job, OutcomeFailure, 50*time.Millisecond, at.Add(time.Minute))
	m.ObserveRun(job, OutcomeTimeout, time.Second, at.Add(2*time.Minute))
	m.CycleSkipped()
	m.CycleSkipped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	runs := findMetricFamily(mfs, "dukalink_cron_job_runs_total")
	if runs == nil {
		t.Fatal("runs counter not exported")
	}
	for _, outcome := range []string{OutcomeSuccess, OutcomeFailure, OutcomeTimeout} {
		var got float64
		for _, metric := range runs.GetMetric() {
			if matchesLabel(metric.GetLabel(), "outcome", outcome) {
				got = metric.GetCounter().GetValue()
			}
		}
		if got != 1 {
			t.Fatalf("expected one %s run, got %f", outcome, got)
		}
	}

	last := findMetricFamily(mfs, "dukalink_cron_job_last_success_timestamp_seconds")
	if last == nil || len(last.GetMetric()) != 1 {
		t.Fatal("last success gauge not exported")
	}
	if got := last.GetMetric()[0].GetGauge().GetValue(); got != float64(at.Unix()) {
		t.Fatalf("last success must ignore failed runs, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "dukalink_cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got < 1.3 {
		t.Fatalf("expected duration sum >= 1.3, got %f", got)
	}

	skipped := findMetricFamily(mfs, "dukalink_cron_cycles_skipped_total")
	if skipped == nil || skipped.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatal("expected two skipped cycles")
	}
}

func TestGatewayMetricsCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewGatewayMetrics(reg)
	metrics.Observe("stk_push", "ok", 120*time.Millisecond)
	metrics.Observe("stk_push", "rate_limited", 5*time.Millisecond)
	metrics.Observe("stk_push", "ok", 80*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	mf := findMetricFamily(mfs, "mpesa_gateway_requests_total")
	if mf == nil {
		t.Fatal("requests counter not exported")
	}
	var ok float64
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), "outcome", "ok") {
			ok = metric.GetCounter().GetValue()
		}
	}
	if ok != 2 {
		t.Fatalf("expected 2 ok calls, got %f", ok)
	}

	if got, err := fetchHistogramSum(mfs, "mpesa_gateway_request_duration_seconds", "operation", "stk_push"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0.2 {
		t.Fatalf("expected duration sum > 0.2, got %f", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewGatewayMetrics(nil).Observe("query", "ok", time.Second)
	NewCronMetrics(nil).ObserveRun("job", OutcomeSuccess, time.Second, time.Now())
	var c *CronMetrics
	c.CycleSkipped()
	var g *GatewayMetrics
	g.Observe("query", "ok", time.Second)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

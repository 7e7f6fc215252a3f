package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCall(t *testing.T) {
	m := NewMetrics()

	m.ObserveCall("alice", "github", "create_issue", "success", "", 20*time.Millisecond)
	m.ObserveCall("alice", "github", "create_issue", "success", "", 40*time.Millisecond)
	m.ObserveCall("bob", "github", "delete_repo", "error", "backend_unavailable", time.Second)

	if got := testutil.ToFloat64(m.CallsTotal.WithLabelValues("github", "create_issue", "success")); got != 2 {
		t.Errorf("calls_total success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SubjectCalls.WithLabelValues("alice", "success")); got != 2 {
		t.Errorf("subject_calls_total alice = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SubjectCalls.WithLabelValues("bob", "error")); got != 1 {
		t.Errorf("subject_calls_total bob = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("backend_unavailable")); got != 1 {
		t.Errorf("errors_total = %v, want 1", got)
	}
	// Non-error outcomes must not touch the error counter.
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("internal")); got != 0 {
		t.Errorf("errors_total internal = %v, want 0", got)
	}
}

func TestObserveCallRateLimited(t *testing.T) {
	m := NewMetrics()

	m.ObserveCall("alice", "github", "create_issue", "rate_limited", "rate_limit_exceeded", time.Millisecond)
	m.ObserveCall("alice", "github", "create_issue", "success", "", time.Millisecond)

	if got := testutil.ToFloat64(m.RateLimitedTotal.WithLabelValues("github")); got != 1 {
		t.Errorf("denied_total = %v, want 1", got)
	}
}

func TestApprovalMetrics(t *testing.T) {
	m := NewMetrics()

	m.ObserveApprovalCreated("repo-deletes")
	m.ObserveApprovalCreated("repo-deletes")
	m.ObserveApprovalResolved("approved")
	m.ObserveApprovalResolved("rejected")

	if got := testutil.ToFloat64(m.ApprovalsCreated.WithLabelValues("repo-deletes")); got != 2 {
		t.Errorf("created_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ApprovalsResolved.WithLabelValues("approved")); got != 1 {
		t.Errorf("resolved_total approved = %v, want 1", got)
	}
}

func TestObserveHTTP(t *testing.T) {
	m := NewMetrics()

	m.ObserveHTTP("POST", "/api/v1/call", 200, 15*time.Millisecond)
	m.ObserveHTTP("POST", "/api/v1/call", 200, 25*time.Millisecond)
	m.ObserveHTTP("GET", "/healthz", 200, time.Millisecond)
	m.ObserveHTTP("POST", "/api/v1/call", 403, time.Millisecond)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/call", "200")); got != 2 {
		t.Errorf("requests_total 200 = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/call", "403")); got != 1 {
		t.Errorf("requests_total 403 = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.HTTPRequestDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestActiveCalls(t *testing.T) {
	m := NewMetrics()

	m.CallStarted()
	m.CallStarted()
	if got := testutil.ToFloat64(m.ActiveCalls); got != 2 {
		t.Errorf("active_calls = %v, want 2", got)
	}
	m.CallDone()
	m.CallDone()
	if got := testutil.ToFloat64(m.ActiveCalls); got != 0 {
		t.Errorf("active_calls after done = %v, want 0", got)
	}
}

func TestRegistryIsIsolated(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.ActiveCalls.Inc()
	if got := testutil.ToFloat64(b.ActiveCalls); got != 0 {
		t.Errorf("second registry sees %v active calls", got)
	}

	families, err := a.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("registry gathered no metric families")
	}
}

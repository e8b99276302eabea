package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("POST", "/api/books/{isbn}/borrow", "200", 25*time.Millisecond)
	m.ObserveRequest("POST", "/api/books/{isbn}/borrow", "409", 5*time.Millisecond)

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/books/{isbn}/borrow", "200"))
	if got != 1 {
		t.Errorf("requests 200 = %v, want 1", got)
	}
	got = testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/books/{isbn}/borrow", "409"))
	if got != 1 {
		t.Errorf("requests 409 = %v, want 1", got)
	}
}

func TestObserveJobRun(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveJobRun("RESTOCK", "completed", time.Second)
	m.ObserveJobRun("RESTOCK", "retried", time.Second)
	m.ObserveJobRun("RESTOCK", "completed", time.Second)

	got := testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("RESTOCK", "completed"))
	if got != 2 {
		t.Errorf("completed runs = %v, want 2", got)
	}
}

func TestObserveMovementUsesAbsoluteAmount(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveMovement("CANCEL_REFUND", -4500)

	got := testutil.ToFloat64(m.MovementCentsTotal.WithLabelValues("CANCEL_REFUND"))
	if got != 4500 {
		t.Errorf("movement cents = %v, want 4500", got)
	}
}

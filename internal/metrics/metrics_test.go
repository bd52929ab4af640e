package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// New registers on the default registry, which accepts each collector only
// once, so the tests share one set of collectors.
var testCollectors = New()

func TestSetQueueDepthZerosMissingStatuses(t *testing.T) {
	c := testCollectors
	c.SetQueueDepth(map[statemachine.Status]int{statemachine.Queued: 3})

	if got := testutil.ToFloat64(c.QueueDepth.WithLabelValues(string(statemachine.Queued))); got != 3 {
		t.Errorf("expected queued depth 3, got %v", got)
	}
	if got := testutil.ToFloat64(c.QueueDepth.WithLabelValues(string(statemachine.Downloading))); got != 0 {
		t.Errorf("expected downloading depth 0, got %v", got)
	}
}

func TestRecordTransitionIncrementsCounter(t *testing.T) {
	c := testCollectors
	c.RecordTransition(statemachine.Queued, statemachine.Searching)
	c.RecordTransition(statemachine.Queued, statemachine.Searching)

	got := testutil.ToFloat64(c.Transitions.WithLabelValues(string(statemachine.Queued), string(statemachine.Searching)))
	if got != 2 {
		t.Errorf("expected 2 recorded transitions, got %v", got)
	}
}

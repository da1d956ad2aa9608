package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAttemptStartedOutcomeLabels(t *testing.T) {
	before := testutil.ToFloat64(attemptsStarted.WithLabelValues("ok"))
	AttemptStarted("")
	AttemptStarted("")
	if got := testutil.ToFloat64(attemptsStarted.WithLabelValues("ok")) - before; got != 2 {
		t.Fatalf("ok outcome increments = %v, want 2", got)
	}

	before = testutil.ToFloat64(attemptsStarted.WithLabelValues("not_enrolled"))
	AttemptStarted("not_enrolled")
	if got := testutil.ToFloat64(attemptsStarted.WithLabelValues("not_enrolled")) - before; got != 1 {
		t.Fatalf("not_enrolled increments = %v, want 1", got)
	}
}

func TestAttemptFinalizedByTrigger(t *testing.T) {
	before := testutil.ToFloat64(attemptsFinalized.WithLabelValues("sweep", "false"))
	AttemptFinalized("sweep", false, 40)
	if got := testutil.ToFloat64(attemptsFinalized.WithLabelValues("sweep", "false")) - before; got != 1 {
		t.Fatalf("sweep/false increments = %v, want 1", got)
	}
}

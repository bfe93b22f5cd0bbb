package lagshed

import (
	"math"
	"testing"
	"time"
)

// AssertRejectRate calls gate.TooBusy trials times and fails t unless the
// fraction of rejections is within tolerance of want.
//
// Use it in host test suites to check shedding at a known lag, e.g. a
// monitor held at 1.5x its threshold should shed about half its calls.
func AssertRejectRate(t testing.TB, gate Gate, trials int, want, tolerance float64) {
	t.Helper()

	if trials < 1 {
		t.Fatalf("AssertRejectRate: trials must be positive, got %d", trials)
	}

	rejected := 0
	for i := 0; i < trials; i++ {
		if gate.TooBusy() {
			rejected++
		}
	}

	got := float64(rejected) / float64(trials)
	if math.Abs(got-want) > tolerance {
		t.Errorf("Reject rate %.3f outside %.3f ± %.3f (lag %dms, %d/%d rejected)",
			got, want, tolerance, gate.Lag(), rejected, trials)
	}
}

// AssertNeverBusy fails t if any of trials calls to gate.TooBusy sheds work.
func AssertNeverBusy(t testing.TB, gate Gate, trials int) {
	t.Helper()

	for i := 0; i < trials; i++ {
		if gate.TooBusy() {
			t.Errorf("TooBusy returned true on call %d (lag %dms)", i+1, gate.Lag())
			return
		}
	}
}

// AssertEventuallyBusy polls gate.TooBusy every tick until it returns true or
// within elapses, in which case t fails.
func AssertEventuallyBusy(t testing.TB, gate Gate, within, tick time.Duration) {
	t.Helper()

	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if gate.TooBusy() {
			return
		}
		time.Sleep(tick)
	}
	t.Errorf("TooBusy never returned true within %v (lag %dms)", within, gate.Lag())
}

package tcp

import "testing"

func TestRetransTimerExpiry(t *testing.T) {
	rt := newRetransTimer(1000)
	rt.restart()
	if rt.tick(999) {
		t.Fatalf("should not expire before RTO")
	}
	if !rt.tick(1) {
		t.Fatalf("should expire once msSinceRestart reaches RTO")
	}
}

func TestRetransTimerDoubling(t *testing.T) {
	rt := newRetransTimer(1000)
	rt.doubleRTO()
	if rt.rto != 2000 {
		t.Fatalf("rto = %d, want 2000", rt.rto)
	}
}

func TestRetransTimerStopped(t *testing.T) {
	rt := newRetransTimer(1000)
	if rt.isRunning() {
		t.Fatalf("should not be running before restart")
	}
	rt.restart()
	rt.stop()
	if rt.isRunning() {
		t.Fatalf("should not be running after stop")
	}
}

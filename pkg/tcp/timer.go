package tcp

// retransTimer is a single-shot, cooperative retransmission timer: it
// does not schedule anything itself, it just accumulates the elapsed
// milliseconds it's handed via tick and reports whether its RTO has
// elapsed. Nothing here spawns a goroutine.
type retransTimer struct {
	rto            uint64 // current retransmission timeout, in ms
	msSinceRestart uint64
	running        bool
}

func newRetransTimer(initialRTO uint64) *retransTimer {
	return &retransTimer{rto: initialRTO}
}

func (t *retransTimer) doubleRTO() { t.rto *= 2 }

func (t *retransTimer) setRTO(rto uint64) { t.rto = rto }

func (t *retransTimer) isRunning() bool { return t.running }

func (t *retransTimer) stop() { t.running = false }

func (t *retransTimer) restart() {
	t.running = true
	t.msSinceRestart = 0
}

// tick advances the timer by ms and reports whether the RTO has elapsed.
func (t *retransTimer) tick(ms uint64) bool {
	t.msSinceRestart += ms
	return t.msSinceRestart >= t.rto
}

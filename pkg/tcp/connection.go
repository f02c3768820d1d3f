package tcp

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/quietloop/gosponge/pkg/bytestream"
	"github.com/quietloop/gosponge/pkg/seqnum"
)

// isnCounter perturbs each Connection's ISN so that two connections
// constructed in the same process don't share a starting sequence
// number, without pulling in math/rand for a library that has no other
// use for it.
var isnCounter atomic.Uint64

// Connection is a single TCP connection's control logic: a Sender and a
// Receiver wired together with the ACK-piggybacking and shutdown
// discipline a bare sender/receiver pair doesn't give you for free.
//
// A Connection never blocks and never spawns a goroutine. An owner
// drives it by calling SegmentReceived as segments arrive and Tick on a
// regular cadence; both calls return (via Segments) whatever needs to
// go out on the wire.
type Connection struct {
	log *slog.Logger
	cfg Config

	sender   *Sender
	receiver *Receiver

	active              bool
	aborting            bool
	lingerAfterFinish   bool
	msSinceLastSegRecvd uint64
	segmentsReceived    uint64

	outbox []Segment
}

// NewConnection constructs a Connection with the given configuration.
// If cfg.FixedISNSet, the sender's ISN is cfg.FixedISN's value instead
// of a randomly chosen one; tests use this to make handshakes
// deterministic.
func NewConnection(cfg Config, log *slog.Logger) *Connection {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.WithDefaults()

	isn := randomISN()
	if cfg.FixedISNSet && cfg.FixedISN != nil {
		isn = *cfg.FixedISN
	}

	outStream := bytestream.New(int(cfg.SendCapacity))
	c := &Connection{
		log:               log,
		cfg:               cfg,
		sender:            NewSender(outStream, int(cfg.MSS), uint64(cfg.RTTimeoutMillis), isn, log),
		receiver:          NewReceiver(int(cfg.RecvCapacity), log),
		active:            true,
		lingerAfterFinish: true,
	}
	return c
}

// randomISN is a seam tests override via Config.FixedISN; production
// callers get an ISN mixed from the wall clock and a per-process
// counter rather than a fixed value.
func randomISN() seqnum.WrappingInt32 {
	n := isnCounter.Add(1)
	mixed := uint64(time.Now().UnixNano()) ^ (n * 0x9e3779b97f4a7c15)
	return seqnum.WrappingInt32(uint32(mixed))
}

// Active reports whether the connection is still alive: it has neither
// finished cleanly nor been aborted.
func (c *Connection) Active() bool { return c.active }

// BytesInFlight reports unacknowledged outbound sequence-space usage.
func (c *Connection) BytesInFlight() int { return c.sender.BytesInFlight() }

// UnassembledBytes reports inbound out-of-order buffering, for tests.
func (c *Connection) UnassembledBytes() int { return c.receiver.UnassembledBytes() }

// TimeSinceLastSegmentReceived reports milliseconds of Tick calls since
// the last inbound segment, for tests.
func (c *Connection) TimeSinceLastSegmentReceived() uint64 { return c.msSinceLastSegRecvd }

// InboundStream is the reassembled, application-facing inbound stream.
func (c *Connection) InboundStream() *bytestream.ByteStream { return c.receiver.Stream() }

// RemainingOutboundCapacity reports how many more bytes Write will
// accept right now.
func (c *Connection) RemainingOutboundCapacity() int {
	return c.sender.stream.RemainingCapacity()
}

// Segments drains and returns the segments produced by the last call
// into the connection (SegmentReceived, Tick, Write, Connect, or
// EndInputStream).
func (c *Connection) Segments() []Segment {
	out := c.outbox
	c.outbox = nil
	return out
}

func (c *Connection) stateListen() bool {
	return c.sender.NextSeqnoAbsolute() == 0 && !c.receiverHasAckno()
}

func (c *Connection) receiverHasAckno() bool {
	_, ok := c.receiver.Ackno()
	return ok
}

func (c *Connection) stateSynRcvd() bool {
	return c.receiverHasAckno() && !c.receiver.Stream().InputEnded()
}

func (c *Connection) stateSynSent() bool {
	seqno := c.sender.NextSeqnoAbsolute()
	return !c.receiverHasAckno() && seqno > 0 && seqno == uint64(c.sender.BytesInFlight())
}

// ConnState enumerates the coarse FSM states a Connection passes
// through, for observability; pkg/tcp's own logic never branches on
// this value.
type ConnState int

const (
	StateListen ConnState = iota
	StateSynSent
	StateSynRcvd
	StateEstablished
	StateFinWait
	StateCloseWait
	StateClosed
)

// State reports the connection's coarse FSM state.
func (c *Connection) State() ConnState {
	switch {
	case !c.active:
		return StateClosed
	case c.stateListen():
		return StateListen
	case c.stateSynSent():
		return StateSynSent
	case c.stateSynRcvd() && c.sender.sendBase == 0:
		return StateSynRcvd
	case c.sender.stream.InputEnded() && !c.receiver.Stream().InputEnded():
		return StateFinWait
	case c.receiver.Stream().InputEnded() && !c.sender.stream.InputEnded():
		return StateCloseWait
	default:
		return StateEstablished
	}
}

// SegmentsSent is the cumulative count of segments this connection has
// queued for transmission.
func (c *Connection) SegmentsSent() uint64 { return c.sender.SegmentsSent() }

// SegmentsReceived is the cumulative count of segments fed to
// SegmentReceived.
func (c *Connection) SegmentsReceived() uint64 { return c.segmentsReceived }

// RTOMillis is the sender's current retransmission timeout.
func (c *Connection) RTOMillis() uint64 { return c.sender.RTOMillis() }

// LifetimeRetransmissions is the cumulative retransmission count.
func (c *Connection) LifetimeRetransmissions() uint64 { return c.sender.LifetimeRetransmissions() }

// flush decorates every segment the sender has queued with the
// receiver's current ackno/window (once established), appends them to
// the outbox, and checks whether the connection can now close cleanly.
func (c *Connection) flush() {
	for _, seg := range c.sender.Segments() {
		if ackno, ok := c.receiver.Ackno(); ok {
			seg.ACK = true
			seg.AckNo = ackno
			win := c.receiver.WindowSize()
			if win > math.MaxUint16 {
				win = math.MaxUint16
			}
			seg.Win = uint16(win)
		}
		if c.aborting {
			seg.RST = true
			c.aborting = false
		}
		c.outbox = append(c.outbox, seg)
	}
	c.examineCleanShutdown()
}

func (c *Connection) examineCleanShutdown() {
	if !c.receiver.Stream().InputEnded() {
		return
	}
	outStream := c.sender.stream
	if !outStream.EOF() {
		c.lingerAfterFinish = false
		return
	}
	if c.sender.BytesInFlight() == 0 {
		if !c.lingerAfterFinish || c.msSinceLastSegRecvd >= 10*uint64(c.cfg.RTTimeoutMillis) {
			c.active = false
		}
	}
}

// abort marks the connection dead, propagates the error to both byte
// streams so their reader/writer sees it, and optionally emits a
// single RST segment.
func (c *Connection) abort(sendRST bool) {
	c.sender.stream.SetError()
	c.receiver.Stream().SetError()
	c.active = false

	if !sendRST {
		return
	}
	c.aborting = true
	if len(c.sender.outbox) == 0 {
		c.sender.SendEmptySegment()
	}
	c.flush()
}

// Connect kicks off the handshake: fills the sender's window, which at
// this point has nothing queued but a SYN to send.
func (c *Connection) Connect() {
	c.sender.FillWindow()
	c.flush()
}

// Write accepts data into the outbound stream and sends as much of it
// as the current window allows.
func (c *Connection) Write(data []byte) int {
	n := c.sender.stream.Write(data)
	c.sender.FillWindow()
	c.flush()
	return n
}

// EndInputStream signals that no more data will be written, so the
// sender should send FIN once the stream drains.
func (c *Connection) EndInputStream() {
	c.sender.stream.EndInput()
	c.sender.FillWindow()
	c.flush()
}

// SegmentReceived processes one inbound segment end to end: receiver
// update, sender ACK processing, handshake completion, and the
// guaranteed-reply rule.
func (c *Connection) SegmentReceived(seg Segment) {
	if !c.active {
		return
	}
	c.msSinceLastSegRecvd = 0
	c.segmentsReceived++

	if c.stateListen() && !seg.SYN {
		return
	}

	if seg.RST {
		c.log.Debug("tcp connection: aborted by peer RST")
		c.abort(false)
		return
	}

	c.receiver.SegmentReceived(seg)

	if seg.ACK {
		c.sender.AckReceived(seg.AckNo, seg.Win)
	}

	if seg.SYN && c.sender.NextSeqnoAbsolute() == 0 {
		c.Connect()
		return
	}

	occupied := seg.LengthInSequenceSpace()
	if occupied > 0 && len(c.sender.outbox) == 0 {
		c.sender.SendEmptySegment()
	}

	// A bare keep-alive probe (no payload, no SYN/FIN) sent at ackno-1
	// isn't "new" data, so the rule above won't reply to it. It still
	// wants an ACK back.
	if ackno, ok := c.receiver.Ackno(); ok && occupied == 0 {
		if seg.SeqNo == seqnum.WrappingInt32(uint32(ackno)-1) {
			c.sender.SendEmptySegment()
		}
	}

	c.flush()
}

// Tick advances time by ms, letting the sender retransmit as needed and
// aborting the connection if the retransmission budget is exhausted.
func (c *Connection) Tick(ms uint64) {
	c.msSinceLastSegRecvd += ms

	_, abort := c.sender.Tick(ms, c.cfg.MaxRetxAttempts)
	if abort {
		c.log.Warn("tcp connection: giving up after too many retransmissions")
		c.abort(true)
		return
	}
	c.flush()
}

// Close performs the same "don't leave a half-open connection behind"
// duty the reference implementation's destructor does: if the
// connection is still active when the owner is done with it, it sends a
// RST rather than silently going away.
func (c *Connection) Close() []Segment {
	if c.active {
		c.log.Warn("tcp connection: closing while still active, sending RST")
		c.abort(true)
	}
	return c.Segments()
}

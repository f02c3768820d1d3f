package tcp

import (
	"log/slog"

	"github.com/quietloop/gosponge/pkg/bytestream"
	"github.com/quietloop/gosponge/pkg/reassembler"
	"github.com/quietloop/gosponge/pkg/seqnum"
)

// Receiver consumes inbound segments, reassembles the byte stream, and
// derives the ackno/window to advertise back to the sender.
type Receiver struct {
	log *slog.Logger

	capacity    int
	reassembler *reassembler.Reassembler
	isn         seqnum.WrappingInt32
	synReceived bool
	finReceived bool
}

// NewReceiver returns a Receiver whose reassembled stream has the given
// capacity.
func NewReceiver(capacity int, log *slog.Logger) *Receiver {
	if log == nil {
		log = slog.Default()
	}
	return &Receiver{
		log:         log,
		capacity:    capacity,
		reassembler: reassembler.New(capacity),
	}
}

// Stream returns the reassembled inbound byte stream.
func (r *Receiver) Stream() *bytestream.ByteStream { return r.reassembler.Output() }

// SegmentReceived processes one inbound segment.
func (r *Receiver) SegmentReceived(seg Segment) {
	if seg.SYN && !r.synReceived {
		r.isn = seg.SeqNo
		r.synReceived = true
	}
	if !r.synReceived {
		r.log.Debug("tcp receiver: dropping segment before SYN", "seqno", seg.SeqNo)
		return
	}

	checkpoint := r.reassembler.FirstUnassembledIndex()
	absSeqno := seqnum.Unwrap(seg.SeqNo, r.isn, checkpoint)

	var streamIndex uint64
	if seg.SYN {
		streamIndex = absSeqno
	} else {
		streamIndex = absSeqno - 1
	}

	r.reassembler.PushSubstring(seg.Payload, streamIndex, seg.FIN)
	if seg.FIN {
		r.finReceived = true
	}
}

// Ackno returns the next absolute index the receiver expects, wrapped by
// ISN, and whether an ISN has been established yet.
func (r *Receiver) Ackno() (seqnum.WrappingInt32, bool) {
	if !r.synReceived {
		return 0, false
	}
	next := r.reassembler.FirstUnassembledIndex() + 1
	if r.finReceived && r.reassembler.Empty() {
		next++
	}
	return seqnum.Wrap(next, r.isn), true
}

// WindowSize is the remaining capacity of the reassembled stream.
func (r *Receiver) WindowSize() int {
	return r.capacity - r.reassembler.Output().BufferSize()
}

// UnassembledBytes reports bytes buffered out-of-order, for testing.
func (r *Receiver) UnassembledBytes() int { return r.reassembler.UnassembledBytes() }

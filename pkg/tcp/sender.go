package tcp

import (
	"container/list"
	"log/slog"

	"github.com/quietloop/gosponge/pkg/bytestream"
	"github.com/quietloop/gosponge/pkg/seqnum"
)

// Sender turns an outbound byte stream into a sequence of segments,
// tracks what's in flight, and retransmits on timeout with exponential
// backoff. Nothing here blocks or spawns a goroutine: FillWindow, Tick
// and AckReceived are plain calls driven by a caller-owned event loop.
type Sender struct {
	log *slog.Logger

	isn    seqnum.WrappingInt32
	stream *bytestream.ByteStream
	mss    int

	nextSeqno uint64 // absolute
	sendBase  uint64 // absolute, oldest unacknowledged byte

	synSent bool
	finSent bool

	lastWindowSize uint64 // last window advertised by the receiver
	bytesInFlight  int

	outbox   []Segment  // segments ready to go out, FIFO
	inFlight *list.List // *outstandingSegment, oldest first
	timer    *retransTimer
	baseRTO  uint64

	consecutiveRetx uint32 // since the last successful ack of new data
	lifetimeRetx    uint64 // cumulative, for metrics
	segmentsSent    uint64
}

type outstandingSegment struct {
	absSeqno uint64
	seg      Segment
}

// NewSender returns a Sender that will draw from stream and produce
// segments no larger than mss bytes of payload, using the given initial
// RTO (milliseconds) and ISN.
func NewSender(stream *bytestream.ByteStream, mss int, initialRTOMillis uint64, isn seqnum.WrappingInt32, log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{
		log:            log,
		isn:            isn,
		stream:         stream,
		mss:            mss,
		inFlight:       list.New(),
		timer:          newRetransTimer(initialRTOMillis),
		baseRTO:        initialRTOMillis,
		lastWindowSize: 1,
	}
}

// NextSeqnoAbsolute is the absolute index of the next byte to be sent.
func (s *Sender) NextSeqnoAbsolute() uint64 { return s.nextSeqno }

// NextSeqno is NextSeqnoAbsolute wrapped by ISN.
func (s *Sender) NextSeqno() seqnum.WrappingInt32 { return seqnum.Wrap(s.nextSeqno, s.isn) }

// BytesInFlight is the total sequence-space footprint of unacknowledged
// segments.
func (s *Sender) BytesInFlight() int { return s.bytesInFlight }

// ConsecutiveRetransmissions counts retransmissions since the last
// successful ACK of new data.
func (s *Sender) ConsecutiveRetransmissions() uint32 { return s.consecutiveRetx }

// LifetimeRetransmissions is the cumulative retransmission count, for
// metrics (unlike ConsecutiveRetransmissions, it never resets).
func (s *Sender) LifetimeRetransmissions() uint64 { return s.lifetimeRetx }

// SegmentsSent is the cumulative count of segments handed to Segments.
func (s *Sender) SegmentsSent() uint64 { return s.segmentsSent }

// RTOMillis is the retransmission timer's current timeout.
func (s *Sender) RTOMillis() uint64 { return s.timer.rto }

// Segments drains and returns the segments queued for transmission.
func (s *Sender) Segments() []Segment {
	out := s.outbox
	s.outbox = nil
	return out
}

func (s *Sender) enqueue(seg Segment) {
	length := seg.LengthInSequenceSpace()
	if length > 0 {
		s.inFlight.PushBack(&outstandingSegment{absSeqno: s.nextSeqno, seg: seg.clone()})
		s.bytesInFlight += length
		if !s.timer.isRunning() {
			s.timer.restart()
		}
	}
	s.nextSeqno += uint64(length)
	s.outbox = append(s.outbox, seg)
	s.segmentsSent++
}

// FillWindow sends as many segments as the receiver's last-advertised
// window (treated as at least 1, to probe a zero window) and available
// stream data allow.
func (s *Sender) FillWindow() {
	windowSize := s.lastWindowSize
	if windowSize == 0 {
		windowSize = 1
	}

	for {
		if !s.synSent {
			s.enqueue(Segment{SeqNo: seqnum.Wrap(s.nextSeqno, s.isn), SYN: true})
			s.synSent = true
			continue
		}

		outstanding := s.nextSeqno - s.sendBase
		if outstanding >= windowSize {
			return
		}

		remainingWindow := windowSize - outstanding
		payloadCap := s.mss
		if uint64(payloadCap) > remainingWindow {
			payloadCap = int(remainingWindow)
		}

		if s.finSent {
			return
		}

		payload := s.stream.Peek(payloadCap)
		canSendFIN := s.stream.EOF() && uint64(len(payload))+outstanding < windowSize

		if len(payload) == 0 && !canSendFIN {
			return
		}

		s.stream.Pop(len(payload))

		seg := Segment{SeqNo: seqnum.Wrap(s.nextSeqno, s.isn), Payload: payload}
		if canSendFIN {
			seg.FIN = true
			s.finSent = true
		}
		s.enqueue(seg)

		if len(payload) == 0 {
			// FIN-only segment queued; nothing more to send this round.
			return
		}
	}
}

// AckReceived processes an ACK for ackno with the advertised window.
// Acks for sequence numbers beyond what has ever been sent are ignored,
// a defensive check the wire protocol alone doesn't give you for free.
func (s *Sender) AckReceived(ackno seqnum.WrappingInt32, window uint16) {
	absAckno := seqnum.Unwrap(ackno, s.isn, s.nextSeqno)
	if absAckno > s.nextSeqno {
		return
	}

	s.lastWindowSize = uint64(window)

	if absAckno <= s.sendBase {
		return
	}

	// sendBase only advances to the end of the last fully-acknowledged
	// segment: a partial ack that lands inside the oldest outstanding
	// segment leaves that segment (and its full length) in flight, so
	// bytesInFlight and sendBase stay consistent with each other.
	progressed := false
	newSendBase := s.sendBase
	for e := s.inFlight.Front(); e != nil; {
		next := e.Next()
		os := e.Value.(*outstandingSegment)
		segEnd := os.absSeqno + uint64(os.seg.LengthInSequenceSpace())
		if segEnd <= absAckno {
			s.bytesInFlight -= os.seg.LengthInSequenceSpace()
			s.inFlight.Remove(e)
			newSendBase = segEnd
			progressed = true
		}
		e = next
	}

	s.sendBase = newSendBase

	if progressed {
		s.consecutiveRetx = 0
		s.timer.setRTO(s.initialRTOFor())
		if s.inFlight.Len() == 0 {
			s.timer.stop()
		} else {
			s.timer.restart()
		}
	}
}

// initialRTOFor is a seam for a fuller RTT estimator; this stack keeps
// the spec's simple fixed-base/doubling-backoff model, so it just
// returns the RTO the timer was constructed with.
func (s *Sender) initialRTOFor() uint64 { return s.baseRTO }

// Tick advances the retransmission timer by ms. If it has expired, the
// oldest outstanding segment is resent. abort reports that
// maxRetxAttempts has been exceeded and the caller should give up on
// the connection.
func (s *Sender) Tick(ms uint64, maxRetxAttempts uint32) (expired bool, abort bool) {
	if !s.timer.isRunning() {
		return false, false
	}
	if !s.timer.tick(ms) {
		return false, false
	}
	if s.inFlight.Len() == 0 {
		return false, false
	}

	expired = true

	front := s.inFlight.Front().Value.(*outstandingSegment)
	s.outbox = append(s.outbox, front.seg.clone())
	s.segmentsSent++
	s.lifetimeRetx++

	// A retransmission into a known-zero window is a window probe, not
	// a sign of loss: it doesn't count against the attempt budget or
	// trigger backoff.
	if s.lastWindowSize > 0 {
		s.consecutiveRetx++
		if s.consecutiveRetx > maxRetxAttempts {
			return true, true
		}
		s.timer.doubleRTO()
	}
	s.timer.restart()
	return true, false
}

// SendEmptySegment queues a zero-length, non-SYN, non-FIN segment, used
// for keep-alive ACKs.
func (s *Sender) SendEmptySegment() {
	s.outbox = append(s.outbox, Segment{SeqNo: seqnum.Wrap(s.nextSeqno, s.isn)})
	s.segmentsSent++
}

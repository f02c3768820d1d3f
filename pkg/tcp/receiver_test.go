package tcp

import (
	"testing"

	"github.com/quietloop/gosponge/pkg/seqnum"
)

func TestReceiverNoAcknoBeforeSYN(t *testing.T) {
	r := NewReceiver(64, nil)
	if _, ok := r.Ackno(); ok {
		t.Fatalf("expected no ackno before SYN")
	}
}

func TestReceiverAcknoAfterSYN(t *testing.T) {
	r := NewReceiver(64, nil)
	r.SegmentReceived(Segment{SYN: true, SeqNo: seqnum.WrappingInt32(100)})
	ackno, ok := r.Ackno()
	if !ok || ackno != seqnum.WrappingInt32(101) {
		t.Fatalf("ackno = %v, ok = %v, want 101/true", ackno, ok)
	}
}

func TestReceiverDataAndFIN(t *testing.T) {
	r := NewReceiver(64, nil)
	r.SegmentReceived(Segment{SYN: true, SeqNo: seqnum.WrappingInt32(0)})
	r.SegmentReceived(Segment{SeqNo: seqnum.WrappingInt32(1), Payload: []byte("hello")})
	ackno, _ := r.Ackno()
	if ackno != seqnum.WrappingInt32(6) {
		t.Fatalf("ackno after data = %v, want 6", ackno)
	}

	r.SegmentReceived(Segment{SeqNo: seqnum.WrappingInt32(6), FIN: true})
	ackno, _ = r.Ackno()
	if ackno != seqnum.WrappingInt32(7) {
		t.Fatalf("ackno after FIN = %v, want 7", ackno)
	}

	if got := r.Stream().Read(5); string(got) != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
	if !r.Stream().EOF() {
		t.Fatalf("expected stream EOF after FIN and reading all buffered bytes")
	}
}

func TestReceiverOutOfOrderThenFill(t *testing.T) {
	r := NewReceiver(64, nil)
	r.SegmentReceived(Segment{SYN: true, SeqNo: seqnum.WrappingInt32(0)})
	r.SegmentReceived(Segment{SeqNo: seqnum.WrappingInt32(4), Payload: []byte("lo")})
	if r.UnassembledBytes() != 2 {
		t.Fatalf("unassembled = %d, want 2", r.UnassembledBytes())
	}
	r.SegmentReceived(Segment{SeqNo: seqnum.WrappingInt32(1), Payload: []byte("hel")})
	if got := r.Stream().Read(5); string(got) != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestReceiverDropsSegmentsBeforeSYN(t *testing.T) {
	r := NewReceiver(64, nil)
	r.SegmentReceived(Segment{SeqNo: seqnum.WrappingInt32(1), Payload: []byte("hi")})
	if _, ok := r.Ackno(); ok {
		t.Fatalf("data before SYN should be dropped")
	}
}

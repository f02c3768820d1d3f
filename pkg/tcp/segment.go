package tcp

import "github.com/quietloop/gosponge/pkg/seqnum"

// Segment is the parsed, in-memory representation of a TCP segment: the
// fields this stack consumes and produces. Turning wire bytes into a
// Segment (and back) is an external collaborator's job; this package
// does no header parsing or serialization.
type Segment struct {
	SeqNo   seqnum.WrappingInt32
	AckNo   seqnum.WrappingInt32
	Win     uint16
	SYN     bool
	ACK     bool
	FIN     bool
	RST     bool
	Payload []byte
}

// LengthInSequenceSpace is the number of sequence numbers this segment
// occupies: one for SYN, one for FIN, plus the payload length.
func (s Segment) LengthInSequenceSpace() int {
	n := len(s.Payload)
	if s.SYN {
		n++
	}
	if s.FIN {
		n++
	}
	return n
}

// clone returns a deep copy, safe to hand to a caller who may mutate it
// (e.g. a TCPConnection decorating ACK/window before transmission).
func (s Segment) clone() Segment {
	out := s
	if len(s.Payload) > 0 {
		out.Payload = append([]byte(nil), s.Payload...)
	}
	return out
}

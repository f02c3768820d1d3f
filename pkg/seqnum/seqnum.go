// Package seqnum implements the 32-bit wrapping sequence numbers used on
// the wire by TCP, and the checkpoint-relative unwrap into the 64-bit
// absolute sequence space the rest of the stack reasons about.
package seqnum

// WrappingInt32 is a 32-bit sequence number: an absolute (64-bit,
// non-negative) index wrapped around the initial sequence number (ISN)
// modulo 2^32. It is the type carried on the wire in seqno/ackno fields.
type WrappingInt32 uint32

// Wrap converts an absolute sequence number into the wire representation
// relative to isn.
func Wrap(absolute uint64, isn WrappingInt32) WrappingInt32 {
	return WrappingInt32(uint32(isn) + uint32(absolute))
}

// Unwrap returns the absolute sequence number that, modulo 2^32, equals
// w-isn and is numerically closest to checkpoint. Ties are broken toward
// the smaller value.
func Unwrap(w, isn WrappingInt32, checkpoint uint64) uint64 {
	const mod = uint64(1) << 32

	offset := uint64(uint32(w) - uint32(isn)) // in [0, mod)

	if checkpoint <= offset {
		// No non-negative candidate is closer: the next one down would be
		// negative, and every one above is farther away.
		return offset
	}

	diff := checkpoint - offset
	k := diff / mod
	low := offset + k*mod
	high := low + mod

	if high-checkpoint < checkpoint-low {
		return high
	}
	return low
}

// Package reassembler buffers out-of-order substrings of a byte stream
// and writes them, in order, to an underlying bytestream.ByteStream.
package reassembler

import (
	"sort"

	"github.com/quietloop/gosponge/pkg/bytestream"
)

// fragment is a buffered, not-yet-assembled substring. Fragments are kept
// disjoint and non-adjacent: merging happens eagerly on insert.
type fragment struct {
	begin uint64
	end   uint64 // half-open: [begin, end)
	data  []byte
}

// Reassembler accepts substrings with absolute stream indices, possibly
// out of order and overlapping, and writes the in-order prefix to its
// output ByteStream as soon as it becomes contiguous.
type Reassembler struct {
	output   *bytestream.ByteStream
	capacity int

	nextExpected uint64 // absolute index of the first unassembled byte
	fragments    []fragment

	eofIndex   uint64
	haveEOFIdx bool
}

// New returns a Reassembler whose output stream has the given capacity.
func New(capacity int) *Reassembler {
	return &Reassembler{
		output:   bytestream.New(capacity),
		capacity: capacity,
	}
}

// Output is the underlying, already-assembled byte stream.
func (r *Reassembler) Output() *bytestream.ByteStream { return r.output }

// FirstUnassembledIndex is the absolute index of the first byte the
// reassembler hasn't yet seen (next_expected_index in the spec).
func (r *Reassembler) FirstUnassembledIndex() uint64 { return r.nextExpected }

// UnassembledBytes returns the total size of all buffered-but-not-yet-
// written fragments.
func (r *Reassembler) UnassembledBytes() int {
	total := 0
	for _, f := range r.fragments {
		total += int(f.end - f.begin)
	}
	return total
}

// Empty reports whether there are no buffered out-of-order fragments.
func (r *Reassembler) Empty() bool { return len(r.fragments) == 0 }

// PushSubstring accepts a substring of the stream at the given absolute
// index. If eof is true, index+len(data) is recorded as the one-past-the-
// end index of the whole stream.
func (r *Reassembler) PushSubstring(data []byte, index uint64, eof bool) {
	if eof {
		// The last EOF-bearing substring wins if multiple disagree; a
		// well-formed stream never actually sends conflicting values.
		r.eofIndex = index + uint64(len(data))
		r.haveEOFIdx = true
	}

	if len(data) == 0 {
		r.checkEOF()
		return
	}

	if index+uint64(len(data)) <= r.nextExpected {
		// Wholly stale.
		return
	}

	windowEnd := r.nextExpected + uint64(r.capacity) - uint64(r.output.BufferSize())
	if index >= windowEnd {
		return
	}
	if end := index + uint64(len(data)); end > windowEnd {
		data = data[:windowEnd-index]
	}
	if len(data) == 0 {
		return
	}

	if index <= r.nextExpected {
		r.writePrefixAligned(data, index)
		r.checkEOF()
		return
	}

	r.insertFragment(index, index+uint64(len(data)), data)
	r.checkEOF()
}

// writePrefixAligned handles the case where the incoming substring
// starts at or before next_expected_index: it writes the newly-in-order
// bytes and then absorbs any fragment that is now contiguous.
func (r *Reassembler) writePrefixAligned(data []byte, index uint64) {
	drop := r.nextExpected - index
	tail := data[drop:]

	r.output.Write(tail)
	r.nextExpected += uint64(len(tail))

	// Drop any fragments now wholly covered.
	i := 0
	for i < len(r.fragments) && r.fragments[i].end <= r.nextExpected {
		i++
	}
	r.fragments = r.fragments[i:]

	// Absorb the next fragment's tail if it's now contiguous.
	if len(r.fragments) > 0 && r.fragments[0].begin <= r.nextExpected {
		f := r.fragments[0]
		tailBytes := f.data[r.nextExpected-f.begin:]
		r.output.Write(tailBytes)
		r.nextExpected = f.end
		r.fragments = r.fragments[1:]
	}
}

// insertFragment merges data into the fragment set, combining it with
// any fragment whose range touches or overlaps [begin, end). On overlap,
// bytes from the earlier-received fragment win.
func (r *Reassembler) insertFragment(begin, end uint64, data []byte) {
	merged := fragment{begin: begin, end: end, data: append([]byte(nil), data...)}

	kept := r.fragments[:0:0]
	for _, f := range r.fragments {
		if f.begin <= merged.end && merged.begin <= f.end {
			merged = mergeTouching(merged, f)
			continue
		}
		kept = append(kept, f)
	}
	kept = append(kept, merged)
	sort.Slice(kept, func(i, j int) bool { return kept[i].begin < kept[j].begin })
	r.fragments = kept
}

// mergeTouching unions two touching/overlapping fragments. older's bytes
// win in the overlapping region, since it arrived first.
func mergeTouching(newer, older fragment) fragment {
	ub := min64(newer.begin, older.begin)
	ue := max64(newer.end, older.end)
	buf := make([]byte, ue-ub)
	copy(buf[newer.begin-ub:], newer.data)
	copy(buf[older.begin-ub:], older.data)
	return fragment{begin: ub, end: ue, data: buf}
}

func (r *Reassembler) checkEOF() {
	if r.haveEOFIdx && r.nextExpected == r.eofIndex {
		r.output.EndInput()
	}
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

package reassembler

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestInOrderDelivery(t *testing.T) {
	r := New(64)
	r.PushSubstring([]byte("hello"), 0, false)
	if got := string(r.Output().Read(5)); got != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestOutOfOrderThenGapFilled(t *testing.T) {
	r := New(64)
	r.PushSubstring([]byte("lo"), 3, false)
	if r.UnassembledBytes() != 2 {
		t.Fatalf("unassembled = %d, want 2", r.UnassembledBytes())
	}
	r.PushSubstring([]byte("hel"), 0, false)
	if r.UnassembledBytes() != 0 {
		t.Fatalf("unassembled after fill = %d, want 0", r.UnassembledBytes())
	}
	if got := string(r.Output().Read(5)); got != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestOverlappingSubstringsAgree(t *testing.T) {
	r := New(64)
	r.PushSubstring([]byte("llo"), 2, false)
	r.PushSubstring([]byte("hel"), 0, false) // overlaps at index 2 ('l')
	if got := string(r.Output().Read(5)); got != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestEOFSignaledOnlyWhenFullyAssembled(t *testing.T) {
	r := New(64)
	r.PushSubstring([]byte("lo"), 3, true) // EOF at index 5, but gap before it
	if r.Output().InputEnded() {
		t.Fatalf("input ended before prefix arrived")
	}
	r.PushSubstring([]byte("hel"), 0, false)
	if !r.Output().InputEnded() {
		t.Fatalf("expected input ended once prefix closes the gap")
	}
}

func TestEmptyEOFSubstringClosesStream(t *testing.T) {
	r := New(64)
	r.PushSubstring([]byte("hello"), 0, false)
	r.Output().Read(5)
	r.PushSubstring(nil, 5, true)
	if !r.Output().EOF() {
		t.Fatalf("expected EOF after empty eof-bearing substring at next_expected_index")
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	const capacity = 4
	r := New(capacity)
	// Push a fragment beyond window; it must be trimmed or dropped, never
	// causing the buffered+assembled total to exceed capacity.
	r.PushSubstring([]byte("abcdefgh"), 0, false)
	if r.Output().BufferSize()+r.UnassembledBytes() > capacity {
		t.Fatalf("capacity exceeded: %d", r.Output().BufferSize()+r.UnassembledBytes())
	}
}

func TestStaleSubstringIgnored(t *testing.T) {
	r := New(64)
	r.PushSubstring([]byte("hello"), 0, false)
	r.Output().Read(5)
	before := r.UnassembledBytes()
	r.PushSubstring([]byte("hel"), 0, false) // wholly before next_expected_index
	if r.UnassembledBytes() != before {
		t.Fatalf("stale substring was buffered")
	}
}

// TestRandomPermutations verifies property 3: any permutation of
// substrings covering [0, N) reassembles to the same content.
func TestRandomPermutations(t *testing.T) {
	const n = 200
	want := make([]byte, n)
	r := rand.New(rand.NewSource(42))
	for i := range want {
		want[i] = byte('a' + r.Intn(26))
	}

	type piece struct {
		begin int
		data  []byte
	}

	for trial := 0; trial < 20; trial++ {
		var pieces []piece
		pos := 0
		for pos < n {
			size := 1 + r.Intn(9)
			if pos+size > n {
				size = n - pos
			}
			pieces = append(pieces, piece{begin: pos, data: want[pos : pos+size]})
			pos += size
		}
		r.Shuffle(len(pieces), func(i, j int) { pieces[i], pieces[j] = pieces[j], pieces[i] })

		re := New(n + 16)
		for i, p := range pieces {
			eof := false
			if p.begin+len(p.data) == n {
				// Only mark EOF once this piece is actually delivered last
				// in program order isn't required; EOF index is absolute.
				eof = true
			}
			_ = i
			re.PushSubstring(p.data, uint64(p.begin), eof)
		}

		got := re.Output().Read(n)
		if !bytes.Equal(got, want) {
			t.Fatalf("trial %d: got %q, want %q", trial, got, want)
		}
		if !re.Output().EOF() {
			t.Fatalf("trial %d: expected EOF", trial)
		}
		if re.UnassembledBytes() != 0 {
			t.Fatalf("trial %d: unassembled bytes = %d, want 0", trial, re.UnassembledBytes())
		}
	}
}

package seqnum

import (
	"math/rand"
	"testing"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	isns := []WrappingInt32{0, 1, 12345, 0xFFFFFFFF, 0x80000000}
	r := rand.New(rand.NewSource(1))

	for _, isn := range isns {
		for i := 0; i < 1000; i++ {
			a := uint64(r.Int63n(1 << 40))
			w := Wrap(a, isn)
			got := Unwrap(w, isn, a)
			if got != a {
				t.Fatalf("isn=%d a=%d: unwrap(wrap(a))=%d, want %d", isn, a, got, a)
			}
		}
	}
}

func TestUnwrapNearCheckpoint(t *testing.T) {
	isn := WrappingInt32(384)
	r := rand.New(rand.NewSource(2))

	for i := 0; i < 1000; i++ {
		a := uint64(r.Int63n(1 << 40))
		w := Wrap(a, isn)

		var ckpt uint64
		delta := int64(r.Int63n(1 << 31))
		if r.Intn(2) == 0 && uint64(delta) <= a {
			ckpt = a - uint64(delta)
		} else {
			ckpt = a + uint64(delta)
		}

		got := Unwrap(w, isn, ckpt)
		if got != a {
			t.Fatalf("isn=%d a=%d ckpt=%d: got %d, want %d", isn, a, ckpt, got, a)
		}
	}
}

func TestUnwrapTieBreaksLow(t *testing.T) {
	isn := WrappingInt32(0)
	w := WrappingInt32(0) // offset = 0

	// checkpoint exactly halfway between 0 and 2^32 should prefer 0.
	got := Unwrap(w, isn, uint64(1)<<31)
	if got != 0 {
		t.Fatalf("tie-break: got %d, want 0", got)
	}
}

func TestUnwrapMonotoneExamples(t *testing.T) {
	cases := []struct {
		name       string
		w          WrappingInt32
		isn        WrappingInt32
		checkpoint uint64
		want       uint64
	}{
		{"zero checkpoint zero isn", 0, 0, 0, 0},
		{"checkpoint below offset clamps to offset", 10, 0, 0, 10},
		{"wrap once forward", 5, 0, uint64(1) << 32, uint64(1)<<32 + 5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Unwrap(c.w, c.isn, c.checkpoint)
			if got != c.want {
				t.Fatalf("got %d, want %d", got, c.want)
			}
		})
	}
}

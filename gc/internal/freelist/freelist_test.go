// ABOUTME: Tests for allocation zeroing, splitting, coalescing and fragmentation stats

package freelist

import "testing"

func TestAllocZeroed(t *testing.T) {
	h := NewHeap(1024)
	off, ok := h.Alloc(32)
	if !ok {
		t.Fatal("alloc failed")
	}
	payload := h.Payload(off)
	for i, b := range payload {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, b)
		}
	}
	payload[0] = 0xFF
	if h.Payload(off)[0] != 0xFF {
		t.Error("Payload should alias the arena")
	}
}

func TestAllocSplits(t *testing.T) {
	h := NewHeap(1024)
	off1, ok := h.Alloc(32)
	if !ok || off1 != 0 {
		t.Fatalf("off1=%d ok=%v", off1, ok)
	}
	if len(h.free) != 1 {
		t.Fatalf("expected one remaining free span, got %d", len(h.free))
	}
	if h.free[0].offset != 32 {
		t.Errorf("remaining free span offset = %d, want 32", h.free[0].offset)
	}
}

func TestFreeCoalescesNeighbors(t *testing.T) {
	h := NewHeap(256)
	a, _ := h.Alloc(32)
	b, _ := h.Alloc(32)
	c, _ := h.Alloc(32)
	h.Free(a)
	h.Free(c)
	h.Free(b)

	if len(h.free) != 1 {
		t.Fatalf("expected full coalescing into one span, got %d spans: %+v", len(h.free), h.free)
	}
	if h.free[0].offset != 0 || h.free[0].size != 256 {
		t.Errorf("coalesced span = %+v, want {0 256}", h.free[0])
	}
}

func TestNoAdjacentFreeBlocksInvariant(t *testing.T) {
	h := NewHeap(512)
	offs := make([]int, 8)
	for i := range offs {
		offs[i], _ = h.Alloc(16)
	}
	// free every other block: leaves gaps, no two adjacent free spans
	for i := 0; i < len(offs); i += 2 {
		h.Free(offs[i])
	}
	for i := 1; i < len(h.free); i++ {
		if h.free[i-1].offset+h.free[i-1].size == h.free[i].offset {
			t.Fatalf("adjacent free spans not coalesced: %+v", h.free)
		}
	}
}

func TestSweepReclaimsUnmarked(t *testing.T) {
	h := NewHeap(256)
	a, _ := h.Alloc(32)
	b, _ := h.Alloc(32)
	h.Header(a).Marked = true
	h.Header(b).Marked = false

	freed := h.Sweep()
	if freed != 32 {
		t.Errorf("freed = %d, want 32", freed)
	}
	if h.Header(a) == nil {
		t.Error("marked object should survive sweep")
	}
	if h.Header(b) != nil {
		t.Error("unmarked object should be reclaimed")
	}
	if h.Header(a).Marked {
		t.Error("mark bit should be cleared after sweep")
	}
}

func TestFragmentationIndexRange(t *testing.T) {
	h := NewHeap(1024)
	offs := make([]int, 16)
	for i := range offs {
		offs[i], _ = h.Alloc(32)
	}
	for i := 0; i < len(offs); i += 2 {
		h.Free(offs[i])
	}
	stats := h.FragStats()
	if stats.FragmentationIndex < 0 || stats.FragmentationIndex > 1 {
		t.Errorf("FragmentationIndex = %f, out of [0,1]", stats.FragmentationIndex)
	}

	h2 := NewHeap(1024)
	off, _ := h2.Alloc(64)
	h2.Free(off)
	contiguous := h2.FragStats()
	if contiguous.FragmentationIndex != 0 {
		t.Errorf("contiguous free region should have FragmentationIndex 0, got %f", contiguous.FragmentationIndex)
	}
}

func TestAllocFailsWhenExhausted(t *testing.T) {
	h := NewHeap(64)
	_, ok := h.Alloc(32)
	if !ok {
		t.Fatal("first alloc should succeed")
	}
	_, ok = h.Alloc(64)
	if ok {
		t.Error("alloc larger than remaining free space should fail")
	}
}

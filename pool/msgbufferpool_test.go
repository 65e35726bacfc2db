package pool

import "testing"

func TestMsgBufferPoolAllocFree(t *testing.T) {
	p := NewMsgBufferPool(DefaultHugeAllocator())

	b, err := p.Alloc(1024)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if b.Capacity() < 1024 {
		t.Fatalf("capacity %d < requested 1024", b.Capacity())
	}
	stats := p.Stats()
	if stats.TotalAlloc != 1 || stats.InUse != 1 {
		t.Fatalf("unexpected stats after alloc: %+v", stats)
	}

	p.Free(b)
	stats = p.Stats()
	if stats.TotalFree != 1 || stats.InUse != 0 {
		t.Fatalf("unexpected stats after free: %+v", stats)
	}
}

func TestMsgBufferPoolRejectsOversize(t *testing.T) {
	p := NewMsgBufferPool(DefaultHugeAllocator())
	if _, err := p.Alloc(1 << 30); err == nil {
		t.Fatal("expected error for oversized allocation")
	}
}

func TestMsgBufferPoolReusesSizeClass(t *testing.T) {
	p := NewMsgBufferPool(DefaultHugeAllocator())

	b1, _ := p.Alloc(256)
	cap1 := b1.Capacity()
	p.Free(b1)

	b2, _ := p.Alloc(256)
	if b2.Capacity() != cap1 {
		t.Fatalf("size class mismatch: %d vs %d", b2.Capacity(), cap1)
	}
}

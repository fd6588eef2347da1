package hostpool

import "testing"

func TestGetAllocatesOnMiss(t *testing.T) {
	p := New()
	buf, h := p.Get(64)
	if len(buf) != 64 {
		t.Fatalf("expected 64 bytes, got %d", len(buf))
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 allocation, got %d", p.Len())
	}
	p.Release(h)
}

func TestGetReusesFreedEntry(t *testing.T) {
	p := New()
	_, h1 := p.Get(128)
	p.Release(h1)

	_, h2 := p.Get(64) // first-fit: smaller request reuses the freed 128-byte buffer
	if p.Len() != 1 {
		t.Fatalf("expected reuse without new allocation, got %d allocations", p.Len())
	}
	p.Release(h2)
}

func TestGetDoesNotReuseInUseEntry(t *testing.T) {
	p := New()
	_, h1 := p.Get(64)
	_, h2 := p.Get(64)
	if p.Len() != 2 {
		t.Fatalf("expected 2 allocations while both in use, got %d", p.Len())
	}
	p.Release(h1)
	p.Release(h2)
}

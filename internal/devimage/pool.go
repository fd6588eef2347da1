// Package devimage implements the process-wide device image pool: reusable
// device images keyed by (width, height, format), first-fit, no
// compaction.
package devimage

import (
	"sync"

	"github.com/gogpu/tilecache/internal/device"
	"github.com/gogpu/tilecache/internal/format"
)

type entry struct {
	img  *device.Image
	used bool
}

// Pool is a thread-safe, first-fit pool of device images.
type Pool struct {
	mu      sync.Mutex
	entries []*entry
	gw      device.Gateway
}

// New constructs an empty Pool that allocates misses through gw.
func New(gw device.Gateway) *Pool {
	return &Pool{gw: gw}
}

// Handle identifies a pooled image for Release.
type Handle struct {
	e *entry
}

// Get returns a device image of at least (width, height) in the requested
// format, reusing a free entry that is at least as large and exactly that
// format, or allocating a new one via the pool's Gateway on miss.
func (p *Pool) Get(width, height int, f format.PixelFormat) (*device.Image, Handle, error) {
	p.mu.Lock()
	for _, e := range p.entries {
		if !e.used && e.img.Format == f && e.img.Width >= width && e.img.Height >= height {
			e.used = true
			p.mu.Unlock()
			return e.img, Handle{e: e}, nil
		}
	}
	p.mu.Unlock()

	img, err := p.gw.CreateImage(width, height, f)
	if err != nil {
		return nil, Handle{}, err
	}
	e := &entry{img: img, used: true}
	p.mu.Lock()
	p.entries = append(p.entries, e)
	p.mu.Unlock()
	return img, Handle{e: e}, nil
}

// Release marks h's image free for reuse by a future Get.
func (p *Pool) Release(h Handle) {
	if h.e == nil {
		return
	}
	p.mu.Lock()
	h.e.used = false
	p.mu.Unlock()
}

// Len reports the number of images the pool has ever allocated.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

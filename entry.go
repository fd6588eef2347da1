package tilecache

import (
	"container/list"

	"github.com/gogpu/tilecache/internal/device"
	"github.com/gogpu/tilecache/internal/format"
)

// Mode is the cache entry state machine's state.
type Mode uint8

const (
	// NoCache entries are exempt from eviction merge-back but still count
	// against device memory pressure.
	NoCache Mode = iota
	// Clean entries mirror a region whose buffer tile store is already
	// current; no write-back is owed.
	Clean
	// Dirty entries are the authoritative copy for their roi; the
	// buffer's tile store may be stale inside it until merged.
	Dirty
)

func (m Mode) String() string {
	switch m {
	case NoCache:
		return "NoCache"
	case Clean:
		return "Clean"
	case Dirty:
		return "Dirty"
	default:
		return "Unknown"
	}
}

// CacheEntry is the central record of the cache: a device image mirroring a
// rectangle of one buffer.
type CacheEntry struct {
	buffer BufferHandle
	tex    *device.Image
	roi    Rectangle
	mode   Mode
	locked bool

	// global and perBuffer are the two list elements this entry occupies
	// simultaneously. They are removed and reinserted together by bump,
	// and removed together by remove.
	global    *list.Element
	perBuffer *list.Element
}

// Buffer returns the entry's owning buffer.
func (e *CacheEntry) Buffer() BufferHandle { return e.buffer }

// Image returns the entry's device image.
func (e *CacheEntry) Image() *device.Image { return e.tex }

// ROI returns the rectangle this entry mirrors, in buffer coordinates.
func (e *CacheEntry) ROI() Rectangle { return e.roi }

// Mode returns the entry's current state.
func (e *CacheEntry) Mode() Mode { return e.mode }

// Locked reports whether the entry is currently the target of an in-flight
// transfer and therefore ineligible for disposal.
func (e *CacheEntry) Locked() bool { return e.locked }

// Format returns the pixel format of the entry's device image.
func (e *CacheEntry) Format() format.PixelFormat { return e.tex.Format }

package tilecache

import "github.com/gogpu/tilecache/internal/format"

// LockMode describes the access an iterator or cache operation requests
// against a tile.
type LockMode uint8

const (
	LockRead LockMode = 1 << iota
	LockWrite
)

// Tile is a single fixed-size block of a buffer's tile store. The cache and
// iterators treat it as an opaque handle; BufferHandle implementations
// decide what backs it.
type Tile interface {
	// Data returns the tile's host-resident bytes, rowmajor, tightly
	// packed at RowStride.
	Data() []byte
	// RowStride reports the byte stride of one tile row.
	RowStride() int
	// Width and Height report the tile's pixel dimensions.
	Width() int
	Height() int
	// DeviceMirror reports the tile's device-resident mirror, if the tile
	// store already has one cached, and whether it is present.
	DeviceMirror() (handle any, ok bool)
	// SetDeviceDirty marks whether the tile's device mirror holds data
	// newer than its host bytes.
	SetDeviceDirty(dirty bool)
}

// BufferHandle is the capability interface the cache and iterators require
// of an external tiled image buffer. The buffer's own tile store, locking,
// and persistence are out of scope for this module; only this surface is
// consumed.
type BufferHandle interface {
	// TileWidth and TileHeight report the buffer's fixed tile dimensions.
	TileWidth() int
	TileHeight() int

	// Shift reports the buffer's scan-shift offset, used to test scan
	// compatibility against another buffer.
	Shift() (x, y int)

	// Format reports the buffer's native pixel format.
	Format() format.PixelFormat

	// Lock and Unlock serialise iteration over the buffer. Lock is
	// reentrant-free: callers must not lock a buffer they already hold.
	Lock() error
	Unlock()

	// TileAt returns the tile covering buffer coordinate (x, y), fetching
	// or creating it in the backing tile store as needed.
	TileAt(x, y int) (Tile, error)

	// Get copies the rectangle r, converted to format f, into dst at the
	// given rowstride (0 means tightly packed).
	Get(r Rectangle, f format.PixelFormat, dst []byte, rowstride int) error
	// Set writes src, given in format f at rowstride, into the rectangle
	// r of the buffer's tile store.
	Set(r Rectangle, f format.PixelFormat, src []byte, rowstride int) error
}

// Package testbuffer provides an in-memory tilecache.BufferHandle
// implementation for tests: storage is genuinely divided into
// fixed-size tile blocks (each its own persistent byte slice), so a
// Tile's Data() aliases the buffer's real storage rather than a
// throwaway copy — direct-access writes through a Tile persist without
// an explicit flush step, matching a real tiled image buffer.
package testbuffer

import (
	"fmt"
	"sync"

	"github.com/gogpu/tilecache"
	"github.com/gogpu/tilecache/internal/format"
)

// tile is a view over one tileStorage's persistent bytes.
type tile struct {
	store *tileStorage
}

func (t *tile) Data() []byte   { return t.store.data }
func (t *tile) RowStride() int { return t.store.w * t.store.bpp }
func (t *tile) Width() int     { return t.store.w }
func (t *tile) Height() int    { return t.store.h }

func (t *tile) DeviceMirror() (any, bool) { return nil, false }
func (t *tile) SetDeviceDirty(bool)       {}

var _ tilecache.Tile = (*tile)(nil)

// tileStorage is one tile's persistent, rowmajor-packed pixel block,
// clipped to the buffer's edge for border tiles.
type tileStorage struct {
	data []byte
	w, h int
	bpp  int
}

type tileKey struct{ tx, ty int }

// Buffer is a fixed-size, single-format in-memory image buffer, divided
// into tileW x tileH blocks allocated lazily on first touch.
type Buffer struct {
	mu sync.Mutex

	width, height  int
	tileW, tileH   int
	shiftX, shiftY int
	f              format.PixelFormat
	tiles          map[tileKey]*tileStorage

	locked bool
}

// New constructs a Buffer of the given pixel dimensions, tile size, and
// format. Tile storage is zero-initialised lazily as tiles are touched.
func New(width, height, tileW, tileH int, f format.PixelFormat) *Buffer {
	return &Buffer{
		width:  width,
		height: height,
		tileW:  tileW,
		tileH:  tileH,
		f:      f,
		tiles:  make(map[tileKey]*tileStorage),
	}
}

// WithShift sets the buffer's scan-shift, for scan-compatibility tests.
func (b *Buffer) WithShift(x, y int) *Buffer {
	b.shiftX, b.shiftY = x, y
	return b
}

func (b *Buffer) TileWidth() int             { return b.tileW }
func (b *Buffer) TileHeight() int            { return b.tileH }
func (b *Buffer) Shift() (int, int)          { return b.shiftX, b.shiftY }
func (b *Buffer) Format() format.PixelFormat { return b.f }

func (b *Buffer) Lock() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.locked {
		return fmt.Errorf("testbuffer: already locked")
	}
	b.locked = true
	return nil
}

func (b *Buffer) Unlock() {
	b.mu.Lock()
	b.locked = false
	b.mu.Unlock()
}

// storageAt returns the persistent storage for the tile covering (x, y),
// allocating and zero-filling it on first touch.
func (b *Buffer) storageAt(x, y int) (*tileStorage, int, int, error) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return nil, 0, 0, fmt.Errorf("testbuffer: coordinate (%d,%d) out of range", x, y)
	}
	tx := (x / b.tileW) * b.tileW
	ty := (y / b.tileH) * b.tileH
	w := minInt(b.tileW, b.width-tx)
	h := minInt(b.tileH, b.height-ty)

	b.mu.Lock()
	defer b.mu.Unlock()
	key := tileKey{tx, ty}
	ts, ok := b.tiles[key]
	if !ok {
		bpp := b.f.BytesPerPixel()
		ts = &tileStorage{data: make([]byte, w*h*bpp), w: w, h: h, bpp: bpp}
		b.tiles[key] = ts
	}
	return ts, tx, ty, nil
}

// TileAt returns the tile covering pixel (x, y). Edge tiles are sized to
// whatever remains of the buffer. The returned Tile's Data() aliases the
// buffer's own persistent storage for that block.
func (b *Buffer) TileAt(x, y int) (tilecache.Tile, error) {
	ts, _, _, err := b.storageAt(x, y)
	if err != nil {
		return nil, err
	}
	return &tile{store: ts}, nil
}

// Get copies rectangle r of the buffer into dst at rowstride (0 means
// tightly packed), scattering the read across however many tiles r
// spans. f must equal the buffer's native format: conversion is
// exercised at the cache layer, not by this fixture.
func (b *Buffer) Get(r tilecache.Rectangle, f format.PixelFormat, dst []byte, rowstride int) error {
	if f != b.f {
		return fmt.Errorf("testbuffer: Get: format conversion not supported by fixture")
	}
	bpp := b.f.BytesPerPixel()
	stride := rowstride
	if stride == 0 {
		stride = r.W * bpp
	}
	return b.forEachTileRow(r, func(ts *tileStorage, tx, ty, rowInBuffer, colInBuffer, n int) error {
		localRow := rowInBuffer - ty
		localCol := colInBuffer - tx
		srcOff := localRow*ts.w*bpp + localCol*bpp
		dstOff := (rowInBuffer-r.Y)*stride + (colInBuffer-r.X)*bpp
		copy(dst[dstOff:dstOff+n*bpp], ts.data[srcOff:srcOff+n*bpp])
		return nil
	})
}

// Set writes src (format f, at rowstride) into rectangle r of the buffer,
// scattering across however many tiles r spans.
func (b *Buffer) Set(r tilecache.Rectangle, f format.PixelFormat, src []byte, rowstride int) error {
	if f != b.f {
		return fmt.Errorf("testbuffer: Set: format conversion not supported by fixture")
	}
	bpp := b.f.BytesPerPixel()
	stride := rowstride
	if stride == 0 {
		stride = r.W * bpp
	}
	return b.forEachTileRow(r, func(ts *tileStorage, tx, ty, rowInBuffer, colInBuffer, n int) error {
		localRow := rowInBuffer - ty
		localCol := colInBuffer - tx
		dstOff := localRow*ts.w*bpp + localCol*bpp
		srcOff := (rowInBuffer-r.Y)*stride + (colInBuffer-r.X)*bpp
		copy(ts.data[dstOff:dstOff+n*bpp], src[srcOff:srcOff+n*bpp])
		return nil
	})
}

// forEachTileRow walks rectangle r one row at a time, further split at
// tile-column boundaries, invoking fn once per contiguous run of n
// pixels that lies within a single tile's storage.
func (b *Buffer) forEachTileRow(r tilecache.Rectangle, fn func(ts *tileStorage, tx, ty, row, col, n int) error) error {
	for row := r.Y; row < r.Y+r.H; row++ {
		col := r.X
		for col < r.X+r.W {
			ts, tx, ty, err := b.storageAt(col, row)
			if err != nil {
				return err
			}
			tileEndX := tx + ts.w
			runEnd := minInt(tileEndX, r.X+r.W)
			n := runEnd - col
			if err := fn(ts, tx, ty, row, col, n); err != nil {
				return err
			}
			col = runEnd
		}
	}
	return nil
}

// Pixels returns a copy of the buffer's raw pixel store, assembled
// tile-by-tile in rowmajor order, for assertions. Untouched tiles read
// back as zero.
func (b *Buffer) Pixels() []byte {
	bpp := b.f.BytesPerPixel()
	out := make([]byte, b.width*b.height*bpp)
	_ = b.Get(tilecache.NewRectangle(0, 0, b.width, b.height), b.f, out, 0)
	return out
}

var _ tilecache.BufferHandle = (*Buffer)(nil)

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

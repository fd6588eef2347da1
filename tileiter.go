package tilecache

// TileIterator walks a single buffer's tile grid, row-major, yielding the
// intersection of each tile with a fixed iteration rectangle. It is lazy,
// finite, and non-restartable.
type TileIterator struct {
	buffer   BufferHandle
	roi      Rectangle
	lockMode LockMode

	tileW, tileH int
	nextCol      int // buffer-x of the next tile to visit
	nextRow      int // buffer-y of the next tile to visit
	started      bool
	done         bool

	curTile        Tile
	curDirectHost  bool
	curDirectDev   bool
	subrect        Rectangle // tile-local
	roi2           Rectangle // buffer coordinates
	col, row       int       // iteration-local tile coordinates
}

// NewTileIterator constructs an iterator over roi against buffer. lockMode
// only gates the direct-access flags; no tile is locked or unlocked.
func NewTileIterator(buffer BufferHandle, roi Rectangle, lockMode LockMode) *TileIterator {
	return &TileIterator{
		buffer:  buffer,
		roi:     roi,
		lockMode: lockMode,
		tileW:   buffer.TileWidth(),
		tileH:   buffer.TileHeight(),
		nextCol: roi.X,
		nextRow: roi.Y,
	}
}

// Next advances to the next step, returning false once the iteration
// rectangle is exhausted. The previous step's tile is simply dropped; this
// iterator takes no per-tile locks, so there is nothing to unlock.
func (it *TileIterator) Next() (bool, error) {
	if it.done {
		return false, nil
	}

	if it.nextRow >= it.roi.Y+it.roi.H {
		it.done = true
		return false, nil
	}

	tileOriginX := (it.nextCol / it.tileW) * it.tileW
	tileOriginY := (it.nextRow / it.tileH) * it.tileH

	t, err := it.buffer.TileAt(it.nextCol, it.nextRow)
	if err != nil {
		it.done = true
		return false, err
	}

	tileEndX := tileOriginX + it.tileW
	roiEndX := it.roi.X + it.roi.W
	roiEndY := it.roi.Y + it.roi.H

	subX := it.nextCol - tileOriginX
	subY := it.nextRow - tileOriginY
	subW := min(tileEndX, roiEndX) - it.nextCol
	subH := min(tileOriginY+it.tileH, roiEndY) - it.nextRow

	it.subrect = Rectangle{X: subX, Y: subY, W: subW, H: subH}
	it.roi2 = Rectangle{X: it.nextCol, Y: it.nextRow, W: subW, H: subH}
	it.col = it.nextCol - it.roi.X
	it.row = it.nextRow - it.roi.Y
	it.curTile = t

	it.curDirectHost = it.lockMode != 0 && subW == it.tileW
	it.curDirectDev = it.curDirectHost && subH == it.tileH

	advance := it.tileW - subX
	it.nextCol += advance
	if it.nextCol >= roiEndX {
		it.nextCol = it.roi.X
		it.nextRow += it.tileH - subY
	}

	it.started = true
	return true, nil
}

// Tile returns the tile held by the current step.
func (it *TileIterator) Tile() Tile { return it.curTile }

// Data returns the current tile's host bytes.
func (it *TileIterator) Data() []byte { return it.curTile.Data() }

// CLData returns the current tile's device mirror, if resident.
func (it *TileIterator) CLData() (any, bool) { return it.curTile.DeviceMirror() }

// Subrect returns the tile-local rectangle of the current step.
func (it *TileIterator) Subrect() Rectangle { return it.subrect }

// SubData returns the slice of Data() starting at Subrect's origin.
func (it *TileIterator) SubData() []byte {
	stride := it.curTile.RowStride()
	bpp := stride / it.curTile.Width()
	off := it.subrect.Y*stride + it.subrect.X*bpp
	return it.curTile.Data()[off:]
}

// RowStride returns the current tile's row stride in bytes.
func (it *TileIterator) RowStride() int { return it.curTile.RowStride() }

// ROI2 returns the current step's intersection in buffer coordinates.
func (it *TileIterator) ROI2() Rectangle { return it.roi2 }

// Col and Row return the current tile's top-left in iteration-local
// coordinates.
func (it *TileIterator) Col() int { return it.col }
func (it *TileIterator) Row() int { return it.row }

// HostDirectAccess reports whether the current step covers a full tile
// width under a read or write lock mode, allowing host code to use the
// tile's own storage without a scratch copy.
func (it *TileIterator) HostDirectAccess() bool { return it.curDirectHost }

// DeviceDirectAccess reports whether the current step covers a full tile
// width AND height, the stricter condition the device iterator requires
// before handing out a tile's own device mirror.
func (it *TileIterator) DeviceDirectAccess() bool { return it.curDirectDev }

// Done reports whether the iterator has been exhausted.
func (it *TileIterator) Done() bool { return it.done }

package tilecache

import (
	"fmt"

	"github.com/gogpu/tilecache/internal/format"
	"github.com/gogpu/tilecache/internal/hostpool"
)

// StreamFlags describes the access a stream requests.
type StreamFlags uint8

const (
	StreamRead StreamFlags = 1 << iota
	StreamWrite
)

type hostStream struct {
	buffer BufferHandle
	format format.PixelFormat
	flags  StreamFlags

	scanCompatible   bool
	formatCompatible bool

	tileIter *TileIterator // non-nil iff scanCompatible

	baseROI Rectangle // rectangle as given to NewHostIterator/AddStream
	roi     Rectangle // current step's rectangle, buffer coordinates
	data    []byte    // current step's host pointer (aliases a tile or scratch)

	scratch       []byte
	scratchHandle hostpool.Handle
	haveScratch   bool
}

// HostIterator multiplexes up to MaxStreams tile iterators in lockstep,
// handing each step host pointers and rectangles. The first stream added
// fixes the iteration geometry.
type HostIterator struct {
	streams []*hostStream
	pool    *hostpool.Pool

	started  bool
	finished bool
	locked   []BufferHandle
	length   int
}

// NewHostIterator creates an iterator with one stream (stream 0), which
// fixes the iteration geometry for every stream added afterwards.
func NewHostIterator(buffer BufferHandle, roi Rectangle, f format.PixelFormat, flags StreamFlags) *HostIterator {
	it := &HostIterator{pool: sharedHostPool()}
	s := &hostStream{buffer: buffer, format: f, flags: flags, baseROI: roi, roi: roi, scanCompatible: true}
	s.formatCompatible = f == buffer.Format()
	it.streams = append(it.streams, s)
	return it
}

// AddStream adds a stream to the iterator, returning its index. A nil roi
// means the stream shares stream 0's rectangle.
func (it *HostIterator) AddStream(buffer BufferHandle, roi *Rectangle, f format.PixelFormat, flags StreamFlags) (int, error) {
	if len(it.streams) >= MaxStreams {
		return 0, fmt.Errorf("tilecache: add_stream: %w", ErrContractViolation)
	}
	stream0 := it.streams[0]
	r := stream0.roi
	if roi != nil {
		r = *roi
	}
	s := &hostStream{buffer: buffer, format: f, flags: flags, baseROI: r, roi: r}
	s.scanCompatible = scanCompatible(stream0.buffer, buffer, stream0.baseROI, r)
	s.formatCompatible = f == buffer.Format()
	it.streams = append(it.streams, s)
	return len(it.streams) - 1, nil
}

// scanCompatible reports whether buf, at roi, may be iterated in lockstep
// with base's tile grid at baseROI: same tile dimensions, and the shift
// delta between the two buffers' origins is a multiple of the tile
// dimensions in both axes.
func scanCompatible(base, buf BufferHandle, baseROI, roi Rectangle) bool {
	if buf.TileWidth() != base.TileWidth() || buf.TileHeight() != base.TileHeight() {
		return false
	}
	bsx, bsy := base.Shift()
	sx, sy := buf.Shift()
	dx := (roi.X - baseROI.X) + (sx - bsx)
	dy := (roi.Y - baseROI.Y) + (sy - bsy)
	return dx%buf.TileWidth() == 0 && dy%buf.TileHeight() == 0
}

// Next advances the iterator. It returns false once stream 0's tile grid
// is exhausted, at which point every scratch buffer has been released and
// every locked buffer unlocked.
func (it *HostIterator) Next() (bool, error) {
	if it.finished {
		return false, fmt.Errorf("tilecache: next: %w", ErrContractViolation)
	}

	if !it.started {
		if err := it.lockDistinctBuffers(); err != nil {
			return false, err
		}
		for _, s := range it.streams {
			if s.scanCompatible {
				s.tileIter = NewTileIterator(s.buffer, s.roi, lockModeFor(s.flags))
			}
		}
		it.started = true
	} else {
		if err := it.flushWrites(); err != nil {
			return false, err
		}
	}

	var stream0Result *bool
	for i, s := range it.streams {
		if s.scanCompatible {
			ok, err := s.tileIter.Next()
			if err != nil {
				return false, err
			}
			if i == 0 {
				stream0Result = &ok
			} else if stream0Result != nil && ok != *stream0Result {
				return false, fmt.Errorf("tilecache: next: %w: scan-compatible streams disagree on end of iteration", ErrContractViolation)
			}
			if !ok {
				continue
			}
			s.roi = s.tileIter.ROI2()
			direct := s.formatCompatible && s.tileIter.Subrect().W == s.buffer.TileWidth()
			if direct {
				s.data = s.tileIter.SubData()
			} else if s.flags&StreamRead != 0 {
				if err := it.readIntoScratch(s); err != nil {
					return false, err
				}
			} else {
				it.ensureScratch(s)
			}
		} else {
			stream0 := it.streams[0]
			dx := stream0.roi.X - stream0.baseROI.X
			dy := stream0.roi.Y - stream0.baseROI.Y
			s.roi = Rectangle{X: s.baseROI.X + dx, Y: s.baseROI.Y + dy, W: stream0.roi.W, H: stream0.roi.H}
			if s.flags&StreamRead != 0 {
				if err := it.readIntoScratch(s); err != nil {
					return false, err
				}
			} else {
				it.ensureScratch(s)
			}
		}
	}

	if stream0Result != nil && !*stream0Result {
		return false, it.end()
	}

	it.length = it.streams[0].roi.W * it.streams[0].roi.H
	return true, nil
}

func lockModeFor(flags StreamFlags) LockMode {
	var m LockMode
	if flags&(StreamRead|StreamCLRead) != 0 {
		m |= LockRead
	}
	if flags&(StreamWrite|StreamCLWrite) != 0 {
		m |= LockWrite
	}
	return m
}

func (it *HostIterator) ensureScratch(s *hostStream) {
	if s.haveScratch {
		return
	}
	size := s.roi.W * s.roi.H * s.format.BytesPerPixel()
	buf, h := it.pool.Get(size)
	s.scratch = buf
	s.scratchHandle = h
	s.haveScratch = true
	s.data = buf
}

func (it *HostIterator) readIntoScratch(s *hostStream) error {
	it.ensureScratch(s)
	return s.buffer.Get(s.roi, s.format, s.scratch, 0)
}

func (it *HostIterator) flushWrites() error {
	for _, s := range it.streams {
		if s.flags&StreamWrite == 0 {
			continue
		}
		direct := s.scanCompatible && s.formatCompatible && s.tileIter != nil && s.tileIter.Subrect().W == s.buffer.TileWidth()
		if direct {
			continue // already in place via the tile's own storage
		}
		if !s.haveScratch {
			continue
		}
		if err := s.buffer.Set(s.roi, s.format, s.scratch, 0); err != nil {
			return fmt.Errorf("tilecache: next: flushing write stream: %w", ErrDeviceTransferFailure)
		}
	}
	return nil
}

func (it *HostIterator) lockDistinctBuffers() error {
	seen := make(map[BufferHandle]bool)
	for _, s := range it.streams {
		if seen[s.buffer] {
			continue
		}
		seen[s.buffer] = true
		if err := s.buffer.Lock(); err != nil {
			return fmt.Errorf("tilecache: next: %w", ErrTileLockFailure)
		}
		it.locked = append(it.locked, s.buffer)
	}
	return nil
}

// end flushes final pending writes, releases scratch buffers, and unlocks
// buffers. It is idempotent-safe to call once via Next's false return.
func (it *HostIterator) end() error {
	if err := it.flushWrites(); err != nil {
		return err
	}
	for _, s := range it.streams {
		if s.haveScratch {
			it.pool.Release(s.scratchHandle)
		}
	}
	for _, b := range it.locked {
		b.Unlock()
	}
	it.finished = true
	return nil
}

// Data returns stream i's current host pointer.
func (it *HostIterator) Data(i int) []byte { return it.streams[i].data }

// ROI returns stream i's current rectangle in buffer coordinates.
func (it *HostIterator) ROI(i int) Rectangle { return it.streams[i].roi }

// Length returns the pixel count of the current step (stream 0's shape).
func (it *HostIterator) Length() int { return it.length }

// StreamCount reports how many streams this iterator holds.
func (it *HostIterator) StreamCount() int { return len(it.streams) }

// ScanCompatible reports whether stream i was determined to be
// scan-compatible with stream 0.
func (it *HostIterator) ScanCompatible(i int) bool { return it.streams[i].scanCompatible }

// FormatCompatible reports whether stream i's requested format equals its
// buffer's native format.
func (it *HostIterator) FormatCompatible(i int) bool { return it.streams[i].formatCompatible }

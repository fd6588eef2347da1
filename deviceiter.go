package tilecache

import (
	"fmt"

	"github.com/gogpu/tilecache/internal/devimage"
	"github.com/gogpu/tilecache/internal/device"
	"github.com/gogpu/tilecache/internal/format"
)

// Device-iterator-only stream flags, additional to StreamRead/StreamWrite.
const (
	StreamCLRead  StreamFlags = 1 << (iota + 2)
	StreamCLWrite
	StreamAux // scratch image, neither pre-read nor written back
)

type devStream struct {
	buffer BufferHandle
	format format.PixelFormat
	flags  StreamFlags

	scanCompatible   bool
	formatCompatible bool

	baseROI Rectangle
	roi     Rectangle

	tileIter *TileIterator

	curImage    *device.Image
	curHandle   devimage.Handle
	usingPooled bool
	heldTile    Tile // direct-access tile of the current step (not locked), dropped by releaseStep
}

// DeviceIterator is the device-resident counterpart of HostIterator: it
// delivers device images per stream instead of host byte slices, advancing
// one tile step per call to Next. Up to BatchSize consecutive steps share a
// single pair of opening/closing barriers, so the device command queue sees
// one ordering fence per batch of sub-tiles rather than one per tile.
type DeviceIterator struct {
	gw   device.Gateway
	pool *devimage.Pool

	streams []*devStream

	started  bool
	finished bool
	locked   []BufferHandle

	stepInBatch int // 0..BatchSize-1, position within the current barrier scope
	length      int
}

// NewDeviceIterator creates a device iterator with one stream, which fixes
// the iteration geometry.
func NewDeviceIterator(gw device.Gateway, pool *devimage.Pool, buffer BufferHandle, roi Rectangle, f format.PixelFormat, flags StreamFlags) *DeviceIterator {
	it := &DeviceIterator{gw: gw, pool: pool}
	s := &devStream{buffer: buffer, format: f, flags: flags, baseROI: roi, roi: roi, scanCompatible: true}
	s.formatCompatible = f == buffer.Format()
	it.streams = append(it.streams, s)
	return it
}

// AddStream adds a stream; a nil roi means the stream shares stream 0's
// rectangle.
func (it *DeviceIterator) AddStream(buffer BufferHandle, roi *Rectangle, f format.PixelFormat, flags StreamFlags) (int, error) {
	if len(it.streams) >= MaxStreams {
		return 0, fmt.Errorf("tilecache: add_stream: %w", ErrContractViolation)
	}
	stream0 := it.streams[0]
	r := stream0.baseROI
	if roi != nil {
		r = *roi
	}
	s := &devStream{buffer: buffer, format: f, flags: flags, baseROI: r, roi: r}
	s.scanCompatible = scanCompatible(stream0.buffer, buffer, stream0.baseROI, r)
	s.formatCompatible = f == buffer.Format()
	it.streams = append(it.streams, s)
	return len(it.streams) - 1, nil
}

// Next advances every stream by one tile step, returning false once stream
// 0's tile grid is exhausted. Every BatchSize steps share one opening and
// one closing barrier; a step that flushes a WRITE/CL_WRITE stream's pooled
// image does so for the immediately preceding step before advancing.
func (it *DeviceIterator) Next() (bool, error) {
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
		it.stepInBatch = 0
	} else {
		if err := it.flushStep(); err != nil {
			return false, err
		}
		it.releaseStep()
	}

	if it.stepInBatch == 0 {
		if err := it.gw.Barrier(); err != nil {
			return false, fmt.Errorf("tilecache: next: opening barrier: %w", ErrDeviceTransferFailure)
		}
	}

	_, done, err := it.stepAll()
	if err != nil {
		return false, err
	}
	if done {
		if err := it.gw.Barrier(); err != nil {
			return false, fmt.Errorf("tilecache: next: closing barrier: %w", ErrDeviceTransferFailure)
		}
		return false, it.end()
	}

	it.stepInBatch++
	if it.stepInBatch == BatchSize {
		if err := it.gw.Barrier(); err != nil {
			return false, fmt.Errorf("tilecache: next: closing barrier: %w", ErrDeviceTransferFailure)
		}
		it.stepInBatch = 0
	}

	it.length = it.streams[0].roi.W * it.streams[0].roi.H
	return true, nil
}

// stepAll advances every stream by one tile step. It returns done=true once
// stream 0's grid is exhausted (asserting every scan-compatible stream
// agrees).
func (it *DeviceIterator) stepAll() (advanced, done bool, err error) {
	var stream0Result *bool
	for i, s := range it.streams {
		if s.scanCompatible {
			ok, terr := s.tileIter.Next()
			if terr != nil {
				return false, false, terr
			}
			if i == 0 {
				stream0Result = &ok
			} else if stream0Result != nil && ok != *stream0Result {
				return false, false, fmt.Errorf("tilecache: next: %w: scan-compatible streams disagree on end of iteration", ErrContractViolation)
			}
			if !ok {
				continue
			}
			s.roi = s.tileIter.ROI2()
			direct := s.formatCompatible && s.tileIter.DeviceDirectAccess()
			if direct {
				mirror, resident := s.tileIter.CLData()
				if resident {
					if img, ok := mirror.(*device.Image); ok {
						s.curImage = img
						s.usingPooled = false
						s.heldTile = s.tileIter.Tile()
						continue
					}
				}
			}
			if err := it.acquirePooled(s); err != nil {
				return false, false, err
			}
		} else {
			stream0 := it.streams[0]
			dx := stream0.roi.X - stream0.baseROI.X
			dy := stream0.roi.Y - stream0.baseROI.Y
			s.roi = Rectangle{X: s.baseROI.X + dx, Y: s.baseROI.Y + dy, W: stream0.roi.W, H: stream0.roi.H}
			if err := it.acquirePooled(s); err != nil {
				return false, false, err
			}
		}
	}
	if stream0Result != nil && !*stream0Result {
		return false, true, nil
	}
	return true, false, nil
}

// acquirePooled gets a pooled device image sized for s.roi and, for READ
// or CL_READ streams, populates it from the buffer via a host round trip
// through the gateway's write path.
func (it *DeviceIterator) acquirePooled(s *devStream) error {
	img, h, err := it.pool.Get(s.roi.W, s.roi.H, s.format)
	if err != nil {
		return fmt.Errorf("tilecache: next: acquiring pooled image: %w", ErrDeviceAllocFailure)
	}
	s.curImage = img
	s.curHandle = h
	s.usingPooled = true

	if s.flags&(StreamRead|StreamCLRead) == 0 {
		return nil
	}
	bpp := s.format.BytesPerPixel()
	host := make([]byte, s.roi.W*s.roi.H*bpp)
	if err := uploadBanded(it.gw, s.buffer, img, s.roi, s.format, host); err != nil {
		return fmt.Errorf("tilecache: next: uploading stream: %w", err)
	}
	return nil
}

// flushStep writes back every WRITE/CL_WRITE stream's pooled image from the
// step just completed, for streams that were not handled via direct
// device-mirror access (those flush through the tile store instead).
func (it *DeviceIterator) flushStep() error {
	for _, s := range it.streams {
		if s.flags&(StreamWrite|StreamCLWrite) == 0 {
			continue
		}
		if !s.usingPooled || s.curImage == nil {
			continue
		}
		bpp := s.format.BytesPerPixel()
		host := make([]byte, s.roi.W*s.roi.H*bpp)
		if err := downloadBanded(it.gw, s.buffer, s.curImage, s.roi, s.format, host); err != nil {
			return fmt.Errorf("tilecache: next: flushing stream to buffer: %w", err)
		}
	}
	return nil
}

// releaseStep releases the pooled image (if any) each stream held for the
// step just completed.
func (it *DeviceIterator) releaseStep() {
	for _, s := range it.streams {
		if s.usingPooled && s.curImage != nil {
			it.pool.Release(s.curHandle)
		}
		s.curImage = nil
		s.usingPooled = false
		s.heldTile = nil
	}
}

func (it *DeviceIterator) lockDistinctBuffers() error {
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

// end performs the final flush, releases any pooled image, finishes the
// device queue, and unlocks buffers. Tiles used via direct access are not
// marked dirty or clean: neither this iterator nor TileIterator calls
// Tile.SetDeviceDirty.
func (it *DeviceIterator) end() error {
	if err := it.flushStep(); err != nil {
		return err
	}
	it.releaseStep()
	if err := it.gw.Finish(); err != nil {
		return fmt.Errorf("tilecache: end: %w", ErrDeviceTransferFailure)
	}
	for _, b := range it.locked {
		b.Unlock()
	}
	it.finished = true
	return nil
}

// End forces cleanup as if iteration had completed naturally, flushing any
// pending write. It is safe to call instead of draining Next to false.
func (it *DeviceIterator) End() error {
	if it.finished {
		return nil
	}
	return it.end()
}

// Image returns stream i's current device image for this step.
func (it *DeviceIterator) Image(i int) *device.Image { return it.streams[i].curImage }

// ROI returns stream i's current rectangle in buffer coordinates.
func (it *DeviceIterator) ROI(i int) Rectangle { return it.streams[i].roi }

// Length returns the pixel count of the current step (stream 0's shape).
func (it *DeviceIterator) Length() int { return it.length }

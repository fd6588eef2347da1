package tilecache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/tilecache/internal/device"
	"github.com/gogpu/tilecache/internal/devimage"
	"github.com/gogpu/tilecache/internal/format"
)

// Store is the cache entry store (global + per-buffer LRU lists and the
// entry state machine). A Store is bound to one device.Gateway and is not
// safe for concurrent use against the same buffer from multiple
// goroutines; callers are expected to hold a buffer lock around any
// sequence of calls against one buffer, per the concurrency model.
type Store struct {
	gw   device.Gateway
	pool *devimage.Pool

	global    *list.List // Value: *CacheEntry, MRU at Front
	perBuffer map[BufferHandle]*list.List

	mu sync.Mutex // guards only perBuffer map membership, not list contents
}

// NewStore constructs a Store bound to gw.
func NewStore(gw device.Gateway) *Store {
	return &Store{
		gw:        gw,
		pool:      devimage.New(gw),
		global:    list.New(),
		perBuffer: make(map[BufferHandle]*list.List),
	}
}

func (s *Store) listFor(b BufferHandle) *list.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.perBuffer[b]
	if !ok {
		l = list.New()
		s.perBuffer[b] = l
	}
	return l
}

// Get performs an exact-rectangle lookup against buffer's per-buffer LRU.
// Its equality predicate also matches any entry whose mode is NoCache,
// regardless of that entry's roi — this reproduces the original cache's
// literal lookup predicate rather than "fixing" it (see the Open
// Questions this behaviour was decided under). On hit, the entry is
// bumped to both list heads.
func (s *Store) Get(buffer BufferHandle, roi Rectangle) *CacheEntry {
	l := s.listFor(buffer)
	for e := l.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*CacheEntry)
		if entry.mode == NoCache || entry.roi.Equal(roi) {
			s.bump(entry)
			return entry
		}
	}
	return nil
}

// Set installs tex as a new entry covering roi in mode, at the heads of
// both LRU lists.
func (s *Store) Set(buffer BufferHandle, tex *device.Image, roi Rectangle, mode Mode) *CacheEntry {
	entry := &CacheEntry{buffer: buffer, tex: tex, roi: roi, mode: mode}
	entry.global = s.global.PushFront(entry)
	entry.perBuffer = s.listFor(buffer).PushFront(entry)
	return entry
}

// bump repositions entry to the front of both lists it occupies.
func (s *Store) bump(entry *CacheEntry) {
	s.global.MoveToFront(entry.global)
	s.listFor(entry.buffer).MoveToFront(entry.perBuffer)
}

// remove detaches entry from both lists without touching its device image
// or state.
func (s *Store) remove(entry *CacheEntry) {
	s.global.Remove(entry.global)
	s.listFor(entry.buffer).Remove(entry.perBuffer)
}

// Request allocates a device image of the given dimensions/format (with an
// eviction-and-retry loop against device out-of-memory), then installs it
// via Set. If the global LRU is empty and allocation still fails, it
// returns the device's error.
func (s *Store) Request(buffer BufferHandle, f format.PixelFormat, roi Rectangle, mode Mode) (*CacheEntry, error) {
	for {
		img, err := s.gw.CreateImage(roi.W, roi.H, f)
		if err == nil {
			return s.Set(buffer, img, roi, mode), nil
		}
		if !errors.Is(err, device.ErrOutOfResources) && !errors.Is(err, device.ErrAllocationFailed) {
			return nil, fmt.Errorf("tilecache: request: %w", ErrDeviceTransferFailure)
		}

		tail := s.global.Back()
		if tail == nil {
			return nil, fmt.Errorf("tilecache: request: %w: %w", ErrDeviceAllocFailure, err)
		}
		victim := tail.Value.(*CacheEntry)
		if mErr := s.merge(victim); mErr != nil {
			return nil, fmt.Errorf("tilecache: request: evicting tail: %w", mErr)
		}
		if fErr := s.gw.Finish(); fErr != nil {
			return nil, fmt.Errorf("tilecache: request: finish during eviction: %w", ErrDeviceTransferFailure)
		}
		if dErr := s.disposeEntry(victim); dErr != nil {
			return nil, fmt.Errorf("tilecache: request: disposing evicted tail: %w", dErr)
		}
		logger().Debug("tilecache: evicted entry for allocation retry", "roi", victim.roi)
	}
}

// merge writes a Dirty entry's device image back to its buffer's tile
// store and transitions it to Clean. locked is held for the duration. A
// no-op for entries already Clean or NoCache.
func (s *Store) merge(entry *CacheEntry) error {
	if entry.mode != Dirty {
		return nil
	}
	entry.locked = true
	defer func() { entry.locked = false }()

	data, err := s.gw.MapImage(entry.tex)
	if err != nil {
		return fmt.Errorf("tilecache: merge: mapping image: %w", ErrDeviceTransferFailure)
	}
	if err := entry.buffer.Set(entry.roi, entry.tex.Format, data, 0); err != nil {
		_ = s.gw.UnmapImage(entry.tex)
		return fmt.Errorf("tilecache: merge: writing back to buffer: %w", ErrDeviceTransferFailure)
	}
	if err := s.gw.UnmapImage(entry.tex); err != nil {
		return fmt.Errorf("tilecache: merge: unmapping image: %w", ErrDeviceTransferFailure)
	}
	entry.mode = Clean
	return nil
}

// disposeEntry destroys entry's device image (pooling is the caller's
// responsibility for temporaries; permanent entries always call
// gw.DestroyImage directly) and removes it from both lists.
func (s *Store) disposeEntry(entry *CacheEntry) error {
	if err := s.gw.DestroyImage(entry.tex); err != nil {
		return fmt.Errorf("tilecache: dispose: %w", ErrDeviceTransferFailure)
	}
	s.remove(entry)
	return nil
}

// Dispose locates the entry backing tex, merges it first if Dirty, then
// destroys it and removes it from both lists. Fails without side effects
// if the entry is locked.
func (s *Store) Dispose(tex *device.Image) (bool, error) {
	entry := s.findByImage(tex)
	if entry == nil {
		return false, nil
	}
	return true, s.disposeLocked(entry)
}

func (s *Store) disposeLocked(entry *CacheEntry) error {
	if entry.locked {
		return fmt.Errorf("tilecache: dispose: %w: %w", ErrContractViolation, ErrEntryLocked)
	}
	if entry.mode == Dirty {
		if err := s.merge(entry); err != nil {
			return err
		}
	}
	return s.disposeEntry(entry)
}

func (s *Store) findByImage(tex *device.Image) *CacheEntry {
	for e := s.global.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*CacheEntry)
		if entry.tex == tex {
			return entry
		}
	}
	return nil
}

// Invalidate merges every entry of buffer whose roi intersects roi,
// transitioning Dirty entries to Clean so the buffer's own tile store
// becomes authoritative again for that rectangle. It does not delete any
// entry. The queue is finished iff at least one merge occurred.
func (s *Store) Invalidate(buffer BufferHandle, roi Rectangle) error {
	l := s.listFor(buffer)
	merged := false
	for e := l.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*CacheEntry)
		if !entry.roi.Intersects(roi) {
			continue
		}
		wasDirty := entry.mode == Dirty
		if err := s.merge(entry); err != nil {
			return err
		}
		if wasDirty {
			merged = true
		}
	}
	if merged {
		if err := s.gw.Finish(); err != nil {
			return fmt.Errorf("tilecache: invalidate: %w", ErrDeviceTransferFailure)
		}
	}
	return nil
}

// Clear disposes every unlocked entry of buffer contained by roi, and
// merges-then-disposes every unlocked entry merely intersecting roi. It
// repeats full passes until one produces no change, matching the
// original's fixed-point loop rather than assuming a single pass
// suffices for overlapping entries.
func (s *Store) Clear(buffer BufferHandle, roi Rectangle) error {
	for {
		l := s.listFor(buffer)
		changed := false
		var next *list.Element
		for e := l.Front(); e != nil; e = next {
			next = e.Next()
			entry := e.Value.(*CacheEntry)
			if entry.locked {
				continue
			}
			switch {
			case roi.Contains(entry.roi):
				if err := s.disposeLocked(entry); err != nil {
					return err
				}
				changed = true
			case entry.roi.Intersects(roi):
				if err := s.merge(entry); err != nil {
					return err
				}
				if err := s.gw.Finish(); err != nil {
					return fmt.Errorf("tilecache: clear: %w", ErrDeviceTransferFailure)
				}
				if err := s.disposeEntry(entry); err != nil {
					return err
				}
				changed = true
			}
		}
		if !changed {
			return nil
		}
	}
}

// RemoveBuffer disposes every entry of buffer, ignoring containment. Each
// dispose call removes the entry it is given from buffer's per-buffer
// list, so repeatedly disposing the current head strictly shrinks the
// list and is guaranteed to terminate.
func (s *Store) RemoveBuffer(buffer BufferHandle) error {
	l := s.listFor(buffer)
	for l.Len() > 0 {
		entry := l.Front().Value.(*CacheEntry)
		if err := s.disposeLocked(entry); err != nil {
			return err
		}
	}
	s.mu.Lock()
	delete(s.perBuffer, buffer)
	s.mu.Unlock()
	return nil
}

// Teardown disposes every entry across every buffer. Intended for process
// shutdown; see the root package's Teardown.
func (s *Store) Teardown() error {
	s.mu.Lock()
	buffers := make([]BufferHandle, 0, len(s.perBuffer))
	for b := range s.perBuffer {
		buffers = append(buffers, b)
	}
	s.mu.Unlock()
	for _, b := range buffers {
		if err := s.RemoveBuffer(b); err != nil {
			return err
		}
	}
	return nil
}

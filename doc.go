// Package tilecache implements a GPU-resident tile cache and the scan
// iterators that drive operations against it.
//
// A tilecache.Store mirrors recently used rectangular regions of one or
// more BufferHandle-implementing image buffers as device images, serving
// reads and writes against those regions without unnecessary host<->device
// transfers. Dirty regions are written back to the buffer's tile store on
// eviction, invalidation, or explicit merge (write-back, write-allocate).
//
// Iteration is exposed through three layers: TileIterator walks a single
// buffer tile-by-tile; HostIterator and DeviceIterator multiplex several
// tile iterators in lockstep, handing an operation either host pointers or
// device images per step.
//
// The package is organised as:
//   - internal/format: the fixed pixel-format table and conversion graph.
//   - internal/device: the device gateway abstraction and its
//     implementations (software reference, and a wgpu/gpucontext/naga
//     backed implementation).
//   - internal/hostpool, internal/devimage: scratch buffer and device
//     image pools.
//   - internal/worker: the fixed-size CPU worker pool DeviceIterator uses
//     to band large host<->device transfers across goroutines.
package tilecache

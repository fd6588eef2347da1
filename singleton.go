package tilecache

import (
	"sync"

	"github.com/gogpu/tilecache/internal/hostpool"
	"github.com/gogpu/tilecache/internal/worker"
)

// Process-wide singletons: the host scratch pool and the CPU worker pool
// are shared by every iterator in the process, per the concurrency model's
// "global mutable state" design note. They are created lazily on first
// use.
var (
	singletonMu   sync.Mutex
	hostPoolInst  *hostpool.Pool
	workerInst    *worker.Pool
)

func sharedHostPool() *hostpool.Pool {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if hostPoolInst == nil {
		hostPoolInst = hostpool.New()
	}
	return hostPoolInst
}

func sharedWorkerPool() *worker.Pool {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if workerInst == nil {
		workerInst = worker.New()
	}
	return workerInst
}

// Teardown disposes every entry store's cache entries and drops this
// process's shared host scratch pool and worker pool, so the next use
// starts from a clean slate. It does not affect any device.Gateway's own
// state.
func Teardown(stores ...*Store) error {
	for _, s := range stores {
		if err := s.Teardown(); err != nil {
			return err
		}
	}
	singletonMu.Lock()
	hostPoolInst = nil
	workerInst = nil
	singletonMu.Unlock()
	return nil
}

package conductor

import (
	"sync"
)

// WorkerPool bounds the number of concurrent background units. Spawn never
// blocks: a saturated pool returns ErrNoFreeWorker so the caller can surface
// a retryable failure instead of queueing silently.
type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{sem: make(chan struct{}, size)}
}

func (p *WorkerPool) Spawn(fn func()) error {
	select {
	case p.sem <- struct{}{}:
	default:
		return ErrNoFreeWorker
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		fn()
	}()
	return nil
}

// Wait blocks until every spawned unit has finished. Used on shutdown.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

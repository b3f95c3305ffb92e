package elasticcache

import (
	"context"
	"sync"
	"time"
)

// GarbageCollector periodically calls CollectGarbage on a backend.
type GarbageCollector struct {
	backend  TaggableBackend
	interval time.Duration
	logger   Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewGarbageCollector creates a collector running every interval. It does nothing until Start.
func NewGarbageCollector(backend TaggableBackend, interval time.Duration, logger Logger) *GarbageCollector {
	if logger == nil {
		logger = NewDefaultLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GarbageCollector{
		backend:  backend,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the collection goroutine. A non-positive interval disables collection.
// Only the first call has an effect, and Start after Stop does nothing.
func (g *GarbageCollector) Start() {
	g.startOnce.Do(func() {
		if g.interval <= 0 {
			close(g.done)
			return
		}
		go g.run()
	})
}

// Stop cancels a running collection and waits for the goroutine to exit. It may be called
// more than once, and before Start.
func (g *GarbageCollector) Stop() {
	g.startOnce.Do(func() { close(g.done) })
	g.stopOnce.Do(g.cancel)
	<-g.done
}

func (g *GarbageCollector) run() {
	defer close(g.done)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			if err := g.backend.CollectGarbage(g.ctx); err != nil {
				g.logger.Error("Garbage collection failed", "error", err)
				continue
			}
			g.logger.Debug("Garbage collection finished", "duration_ms", time.Since(start).Milliseconds())
		case <-g.ctx.Done():
			return
		}
	}
}

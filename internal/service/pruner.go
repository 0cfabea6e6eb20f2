package service

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vilaca/flatrest/internal/logging"
)

// Pruner deletes stored responses older than a given age.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StorePruner periodically prunes a response store so it does not grow
// without bound while the gateway runs.
type StorePruner struct {
	store    Pruner
	maxAge   time.Duration
	interval time.Duration
	logger   *log.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewStorePruner creates a pruner deleting entries older than maxAge every interval.
func NewStorePruner(store Pruner, maxAge, interval time.Duration, logger *log.Logger) *StorePruner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &StorePruner{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		logger:   logging.OrDiscard(logger),
	}
}

// Start launches the prune loop and returns immediately. Calling Start twice
// is a no-op; a stopped pruner may be started again.
func (p *StorePruner) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	stop := make(chan struct{})
	p.stopChan = stop
	p.mu.Unlock()

	p.logger.Info("store pruner starting", "interval", p.interval, "max_age", p.maxAge)
	p.wg.Add(1)
	go p.loop(stop)
}

// Stop stops the loop and waits for an in-progress prune to finish.
func (p *StorePruner) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stop := p.stopChan
	p.mu.Unlock()

	close(stop)
	p.wg.Wait()
	p.logger.Info("store pruner stopped")
}

// PruneNow runs one prune pass.
func (p *StorePruner) PruneNow(ctx context.Context) (int64, error) {
	n, err := p.store.Prune(ctx, p.maxAge)
	if err != nil {
		p.logger.Warn("store prune failed", "err", err)
	}
	return n, err
}

func (p *StorePruner) loop(stop <-chan struct{}) {
	defer p.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	_, _ = p.PruneNow(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = p.PruneNow(ctx)
		case <-stop:
			return
		}
	}
}

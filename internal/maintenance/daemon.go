// Package maintenance runs the engine's periodic housekeeping: expired
// table descriptions leave the catalog cache and decayed entries leave
// the access statistics.
package maintenance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/quarrydb/quarry/internal/catalog"
	"github.com/quarrydb/quarry/internal/observability"
)

// Config holds configuration for the maintenance daemon.
type Config struct {
	// CheckInterval is how often a maintenance cycle runs.
	CheckInterval time.Duration
}

// DefaultConfig returns the default maintenance configuration.
func DefaultConfig() Config {
	return Config{CheckInterval: 5 * time.Minute}
}

// Daemon runs maintenance cycles in the background.
type Daemon struct {
	config Config
	cache  catalog.Cache
	stats  *observability.AccessStats

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDaemon creates a maintenance daemon over the given cache and
// statistics. Either may be nil to skip that concern.
func NewDaemon(config Config, cache catalog.Cache, stats *observability.AccessStats) *Daemon {
	return &Daemon{
		config: config,
		cache:  cache,
		stats:  stats,
	}
}

// Start begins the maintenance loop. It runs until the context is
// cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("maintenance: daemon is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.run(ctx)
	return nil
}

// Stop gracefully stops the maintenance daemon.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.cancel()
	<-d.done
	d.running = false
	return nil
}

// run is the main maintenance loop.
func (d *Daemon) run(ctx context.Context) {
	defer close(d.done)

	// Run immediately on start
	d.runOnce(ctx)

	ticker := time.NewTicker(d.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runOnce(ctx)
		}
	}
}

// runOnce performs a single maintenance cycle. Failures are logged and
// never halt the loop.
func (d *Daemon) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if d.cache != nil {
		pruned, err := d.cache.Prune(ctx)
		if err != nil {
			log.Printf("maintenance: description cache prune failed: %v", err)
		} else if pruned > 0 {
			log.Printf("maintenance: pruned %d expired table descriptions", pruned)
		}
	}

	if d.stats != nil {
		d.stats.Prune()
	}
}

// RunOnce performs a single maintenance cycle (useful for testing).
func (d *Daemon) RunOnce(ctx context.Context) {
	d.runOnce(ctx)
}

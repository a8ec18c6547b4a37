package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/auriga-id/casd/internal/session"
)

// Sweeper periodically removes expired session trees from a store. An
// expired tree is invalidated first so relying parties get their logout
// notification before the tree disappears.
type Sweeper struct {
	store    SessionStorage
	interval time.Duration
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewSweeper builds a sweeper over the store. Start must be called to
// begin sweeping.
func NewSweeper(store SessionStorage, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (sw *Sweeper) Start() {
	go func() {
		defer close(sw.done)
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sw.Sweep(context.Background())
			case <-sw.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (sw *Sweeper) Stop() {
	close(sw.stop)
	<-sw.done
}

// Sweep runs one pass: collect expired roots, then invalidate and delete
// them. Collection is separated from deletion so the store is not mutated
// while being iterated.
func (sw *Sweeper) Sweep(ctx context.Context) {
	roots, err := sw.store.RootSessions(ctx)
	if err != nil {
		sw.logger.Error("sweep: listing sessions failed", slog.String("error", err.Error()))
		return
	}

	var expired []*session.Session
	for _, root := range roots {
		if !root.IsValid() {
			expired = append(expired, root)
		}
	}

	for _, root := range expired {
		root.Invalidate()
		if err := sw.store.DeleteSession(ctx, root); err != nil {
			sw.logger.Error("sweep: deleting session failed",
				slog.String("session_id", root.ID()),
				slog.String("error", err.Error()))
			continue
		}
		sw.logger.Info("swept expired session", slog.String("session_id", root.ID()))
	}
}

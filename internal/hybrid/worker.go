package hybrid

import (
	"context"
	"time"
)

// MergeWorker runs the periodic merge pass on a fixed interval. Consumers
// that need an immediate pass call Resolver.Merge directly (the sync API
// does exactly that); the worker only bounds staleness.
type MergeWorker struct {
	resolver *Resolver
	interval time.Duration
	kick     chan struct{}
}

func NewMergeWorker(resolver *Resolver, interval time.Duration) *MergeWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MergeWorker{
		resolver: resolver,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests an out-of-cycle merge pass. Coalesces if one is pending.
func (w *MergeWorker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Start runs the merge loop until ctx is cancelled. A final pass runs on
// shutdown so locally committed writes reach the remote ledger when it is up.
func (w *MergeWorker) Start(ctx context.Context) {
	w.resolver.log.Info().Dur("interval_ms", w.interval).Msg("merge-worker: starting")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runOnce(ctx)
		case <-w.kick:
			w.runOnce(ctx)
		case <-ctx.Done():
			w.resolver.log.Info().Msg("merge-worker: stopping, final merge pass")
			flushCtx, cancel := context.WithTimeout(context.Background(), w.resolver.timeout*2)
			w.runOnce(flushCtx)
			cancel()
			return
		}
	}
}

func (w *MergeWorker) runOnce(ctx context.Context) {
	if err := w.resolver.Merge(ctx); err != nil {
		w.resolver.log.Warn().Err(err).Msg("merge-worker: merge pass failed")
	}
}

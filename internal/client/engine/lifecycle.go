package engine

import (
	"context"
	"time"
)

// Start launches the automatic-sync watcher and, when retention is enabled,
// the periodic sweep of old synced requests.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go e.watchReconnect(ctx)

	if e.retentionAge > 0 {
		e.wg.Add(1)
		go e.sweepLoop(ctx)
	}
}

// Stop terminates the background goroutines and waits for them.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}

// watchReconnect schedules one automatic sync pass per reconnect transition:
// wait out the settle delay, drain any signals from a connection that kept
// flapping meanwhile, then sync if pending work exists. The wasOffline flag
// is cleared exactly once regardless of the pass outcome, so a flapping
// connection cannot cause repeated sync storms.
func (e *Engine) watchReconnect(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-e.conn.Reconnected():
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(e.settleDelay):
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		}

		// coalesce flaps that happened during the settle delay
		select {
		case <-e.conn.Reconnected():
		default:
		}

		if e.logger != nil {
			e.logger.Info(ctx, "reconnected, checking pending work")
		}

		if pendingCount, _, err := e.store.Counts(ctx); err == nil && pendingCount > 0 && !e.IsSyncing() {
			e.SyncAll(ctx)
		}

		// opportunistic roster refresh while the link is known good
		if err := e.RefreshWorkers(ctx); err != nil && e.logger != nil {
			e.logger.Debug(ctx, "worker cache refresh failed", "error", err)
		}

		e.conn.ClearWasOffline()
	}
}

// sweepLoop periodically removes synced requests older than the retention
// age. Housekeeping only; requests still in the work queue are never touched.
func (e *Engine) sweepLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-e.retentionAge)
			n, err := e.store.PurgeSynced(ctx, cutoff)
			if err != nil {
				if e.logger != nil {
					e.logger.Error(ctx, "retention sweep failed", "error", err)
				}
				continue
			}
			if n > 0 && e.logger != nil {
				e.logger.Info(ctx, "retention sweep removed synced requests", "count", n)
			}
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

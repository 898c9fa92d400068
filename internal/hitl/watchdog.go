package hitl

import (
	"context"
	"time"

	"github.com/okenna/parentcare/pkg/logging"
)

// Watchdog periodically scans for pending cases older than the threshold
// and alerts the notifier once per case.
type Watchdog struct {
	store     CaseStore
	notifier  Notifier
	threshold time.Duration
	logger    *logging.Logger
	now       func() time.Time

	notified map[string]struct{}
}

// NewWatchdog creates a watchdog. Notifier may be nil, in which case stale
// cases are only logged.
func NewWatchdog(store CaseStore, notifier Notifier, threshold time.Duration, logger *logging.Logger) *Watchdog {
	if store == nil {
		panic("hitl: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Watchdog{
		store:     store,
		notifier:  notifier,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
		notified:  make(map[string]struct{}),
	}
}

// Run scans on the given interval until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("case watchdog started", "threshold", w.threshold, "interval", interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("case watchdog stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs one scan and returns how many alerts were attempted.
func (w *Watchdog) Sweep(ctx context.Context) int {
	pending, err := w.store.List(ctx, StatusPending)
	if err != nil {
		w.logger.Error("watchdog list failed", "error", err)
		return 0
	}

	seen := make(map[string]struct{}, len(pending))
	alerts := 0
	now := w.now()
	for _, c := range pending {
		seen[c.ID] = struct{}{}
		age := now.Sub(c.CreatedAt)
		if age < w.threshold {
			continue
		}
		if _, done := w.notified[c.ID]; done {
			continue
		}
		w.notified[c.ID] = struct{}{}
		alerts++

		w.logger.Warn("case pending past threshold", "case_id", c.ID, "priority", c.Priority, "age", age.Round(time.Second))
		if w.notifier == nil {
			continue
		}
		if err := w.notifier.NotifyStaleCase(ctx, c, age); err != nil {
			w.logger.Error("stale case alert failed", "error", err, "case_id", c.ID)
		}
	}

	// Forget cases that left the pending state.
	for id := range w.notified {
		if _, still := seen[id]; !still {
			delete(w.notified, id)
		}
	}
	return alerts
}

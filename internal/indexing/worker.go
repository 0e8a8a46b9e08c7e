package indexing

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/gupta2140/sensenet/internal/models"
	"github.com/gupta2140/sensenet/internal/search"
	"github.com/gupta2140/sensenet/internal/storage"
)

// WorkerConfig tunes the lease-driven poll loop.
type WorkerConfig struct {
	BatchSize    int
	LeaseTimeout time.Duration
	PollInterval time.Duration
}

// DefaultWorkerConfig returns sensible worker defaults.
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		BatchSize:    32,
		LeaseTimeout: time.Minute,
		PollInterval: time.Second,
	}
}

// Worker drains the indexing activity queue: it leases executable
// activities, applies them in id order, and tracks gaps so activities held
// by other workers are reconciled once they finish. Multiple workers can
// run against the same store; the atomic lease transition is the only
// coordination they need.
type Worker struct {
	deps    *Dependencies
	factory *Factory
	cfg     *WorkerConfig
	logger  *slog.Logger

	lastApplied int64
	gaps        map[int64]struct{}
}

// NewWorker creates a worker. A nil config takes the defaults, a nil
// logger logs to slog.Default().
func NewWorker(store storage.Store, sink search.DocumentSink, factory *Factory, cfg *WorkerConfig, logger *slog.Logger) *Worker {
	if cfg == nil {
		cfg = DefaultWorkerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = NewFactory()
	}
	return &Worker{
		deps:    &Dependencies{Store: store, Sink: sink, Logger: logger},
		factory: factory,
		cfg:     cfg,
		logger:  logger,
		gaps:    make(map[int64]struct{}),
	}
}

// Run polls the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("activity batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce leases and executes one batch. Returns the number of activities
// completed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	leased, finished, err := w.deps.Store.LoadExecutableAndFinished(
		ctx, w.cfg.BatchSize, w.cfg.LeaseTimeout, w.waitingIDs())
	if err != nil {
		return 0, err
	}

	// Gap-filled ids completed elsewhere need no further waiting.
	for _, id := range finished {
		delete(w.gaps, id)
		if id > w.lastApplied {
			w.lastApplied = id
		}
	}
	if len(leased) == 0 {
		return 0, nil
	}

	w.noteGaps(leased)

	done := 0
	leaseStart := time.Now()
	for i, rec := range leased {
		// Long batches refresh the remaining leases halfway through the
		// timeout so another worker does not reclaim them mid-run.
		if time.Since(leaseStart) > w.cfg.LeaseTimeout/2 {
			if err := w.refreshRemaining(ctx, leased[i:]); err != nil {
				w.logger.Warn("lease refresh failed", "error", err)
			}
			leaseStart = time.Now()
		}

		if err := w.execute(ctx, rec); err != nil {
			w.logger.Error("activity failed, returning to queue",
				"id", rec.ID, "type", rec.Type, "path", rec.Path, "error", err)
			if stateErr := w.deps.Store.UpdateActivityRunningState(ctx, rec.ID, models.ActivityWaiting); stateErr != nil {
				w.logger.Error("requeue activity", "id", rec.ID, "error", stateErr)
			}
			continue
		}

		if err := w.deps.Store.UpdateActivityRunningState(ctx, rec.ID, models.ActivityDone); err != nil {
			w.logger.Error("mark activity done", "id", rec.ID, "error", err)
			continue
		}
		delete(w.gaps, rec.ID)
		if rec.ID > w.lastApplied {
			w.lastApplied = rec.ID
		}
		done++
	}
	return done, nil
}

func (w *Worker) execute(ctx context.Context, rec *models.IndexingActivityRecord) error {
	activity, err := w.factory.FromRecord(rec)
	if err != nil {
		// An unknown type would wedge the queue if requeued forever;
		// drop it with a loud log instead.
		w.logger.Error("dropping unexecutable activity", "id", rec.ID, "type", rec.Type, "error", err)
		return nil
	}
	w.logger.Debug("executing activity", "id", rec.ID, "type", rec.Type, "path", rec.Path)
	return activity.Execute(ctx, w.deps)
}

// noteGaps records ids between the last applied position and the leased
// batch that neither this batch nor earlier rounds covered. They are leased
// or deleted elsewhere; the next rounds reconcile them via waitingIDs.
func (w *Worker) noteGaps(leased []*models.IndexingActivityRecord) {
	batch := make(map[int64]struct{}, len(leased))
	maxID := w.lastApplied
	for _, rec := range leased {
		batch[rec.ID] = struct{}{}
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	for id := w.lastApplied + 1; id < maxID; id++ {
		if _, ok := batch[id]; !ok {
			w.gaps[id] = struct{}{}
		}
	}
}

func (w *Worker) waitingIDs() []int64 {
	if len(w.gaps) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(w.gaps))
	for id := range w.gaps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *Worker) refreshRemaining(ctx context.Context, remaining []*models.IndexingActivityRecord) error {
	ids := make([]int64, len(remaining))
	for i, rec := range remaining {
		ids[i] = rec.ID
	}
	return w.deps.Store.RefreshActivityLockTime(ctx, ids)
}

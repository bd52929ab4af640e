// Package orchestrator wires QueueStore, SearchAdapter, DownloadClientAdapter,
// CatalogDownloadWorker, the converter, and the importer into the single
// cooperative monitor loop that drives every item through the pipeline.
// There is no process-wide mutable state: everything the loop needs is
// constructed once into an Orchestrator value and passed down explicitly.
package orchestrator

import (
	"context"
	"time"

	"github.com/vaultshelf/orchestrator/internal/catalogworker"
	"github.com/vaultshelf/orchestrator/internal/convert"
	"github.com/vaultshelf/orchestrator/internal/download"
	"github.com/vaultshelf/orchestrator/internal/events"
	"github.com/vaultshelf/orchestrator/internal/librarystore"
	"github.com/vaultshelf/orchestrator/internal/logging"
	"github.com/vaultshelf/orchestrator/internal/metrics"
	"github.com/vaultshelf/orchestrator/internal/queue"
	"github.com/vaultshelf/orchestrator/internal/retry"
	"github.com/vaultshelf/orchestrator/internal/search"
	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// Clock is injected so retry backoff and seeding-duration math are
// deterministic in tests.
type Clock func() time.Time

// Settings is the subset of config.Config the loop reads on every tick.
// It is a plain struct rather than a dependency on the config package so
// this package never needs to know about file/env loading.
type Settings struct {
	PollingInterval         time.Duration
	MaxActiveSearches       int
	MaxConcurrentDownloads  int
	MinSearchConfidence     int
	SeedingEnabled          bool
	WaitForSeeding          bool
	DeleteSourceOnImport    bool
	TempDownloadPath        string
	TempConversionPath      string
	LibraryRoot             string
	NamingTemplate          string
	ExternalBaseURLOverride string
}

// Deps bundles every collaborator the loop depends on.
type Deps struct {
	Store       queue.Store
	Search      search.Adapter
	Adapters    []download.Adapter
	Fetcher     *download.Fetcher
	CatalogPool *catalogworker.Pool
	Converter   convert.Converter
	PathMapper  *download.PathMapper
	Retry       *retry.Policy
	Events      events.Sink
	Metrics     *metrics.Collectors
	// Library resolves a catalog identifier into title/author and
	// ownership/sync metadata. A nil Library degrades gracefully: search
	// runs with an empty title/author and ownership is never checked
	// before a catalog download starts.
	Library librarystore.Store
	Clock   Clock
	Log     *logging.Logger
}

// Orchestrator runs the monitor loop: process_queue, then
// monitor_downloads, then process_pipeline, on a fixed interval. A panic
// inside one tick is recovered, logged, and followed by a short sleep
// before the loop resumes rather than crashing the process.
type Orchestrator struct {
	deps Deps
	cfg  Settings
}

// New constructs an Orchestrator. A nil Clock defaults to time.Now.
func New(deps Deps, cfg Settings) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.PollingInterval < time.Second {
		cfg.PollingInterval = 2 * time.Second
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

// SetCatalogPool attaches the catalog worker pool after construction. It
// exists because the pool's Reporter is built from the Orchestrator
// itself (NewCatalogReporter), so the pool can only be created once the
// Orchestrator already exists.
func (o *Orchestrator) SetCatalogPool(pool *catalogworker.Pool) {
	o.deps.CatalogPool = pool
}

// Run blocks until ctx is cancelled, ticking the pipeline forward at
// cfg.PollingInterval.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.deps.Log.WithField("interval", o.cfg.PollingInterval).Info("starting monitor loop")

	ticker := time.NewTicker(o.cfg.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.deps.Log.Info("monitor loop stopping")
			return nil
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick runs one iteration of the three stages, recovering from any panic
// so a single bad item can't take down the whole process.
func (o *Orchestrator) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.deps.Log.WithField("panic", r).Error("recovered from panic in monitor loop iteration")
			time.Sleep(5 * time.Second)
		}
	}()

	o.processQueue(ctx)
	o.monitorDownloads(ctx)
	o.processPipeline(ctx)

	if o.deps.Metrics != nil {
		if stats, err := o.deps.Store.Statistics(ctx); err == nil {
			o.deps.Metrics.SetQueueDepth(stats)
		}
	}
}

// transition applies a statemachine-checked status change and stamps the
// timestamps/progress fields the transition implies. It is the one place
// every stage funnels status writes through so the invariants in
// statemachine and queue stay enforced uniformly.
func (o *Orchestrator) transition(ctx context.Context, item *queue.Item, to statemachine.Status, extra queue.Fields) error {
	// A retry that sends a failed item back to the status it never left
	// (e.g. a search failure retried while still SEARCHING) is a field
	// update, not a graph edge — it has no entry in the transition table
	// because nothing about the item's status actually changes.
	if item.Status == to {
		return o.deps.Store.Update(ctx, item.ID, extra)
	}

	if !statemachine.Allowed(item.Status, to) {
		o.deps.Log.WithField("item_id", item.ID).WithField("from", item.Status).WithField("to", to).Warn("rejected illegal transition")
		return nil
	}

	fields := extra
	fields.Status = &to
	if statemachine.StampsStartedAt(to) {
		now := o.deps.Clock()
		fields.StartedAt = &now
	}
	if statemachine.StampsCompletedAt(to) {
		now := o.deps.Clock()
		fields.CompletedAt = &now
	}
	if statemachine.ResetsProgress(to) {
		fields.ProgressNull = true
	}

	if err := o.deps.Store.Update(ctx, item.ID, fields); err != nil {
		return err
	}

	oldStatus := item.Status
	item.Status = to
	o.deps.Events.Emit(events.NewStateChanged(item.ID, string(oldStatus), string(to)))
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordTransition(oldStatus, to)
	}
	return nil
}

// failItem runs a failed attempt through the retry policy and applies
// whatever it decides: another attempt at the retry target, or a
// permanent terminal status.
func (o *Orchestrator) failItem(ctx context.Context, item *queue.Item, kind statemachine.FailureKind, errMsg string) {
	outcome := o.deps.Retry.HandleFailure(kind, item.RetryCount, o.deps.Clock())

	fields := queue.Fields{
		RetryCount: &outcome.RetryCount,
		LastError:  &errMsg,
	}
	if !outcome.NextRetryAt.IsZero() {
		fields.NextRetryAt = &outcome.NextRetryAt
	} else {
		fields.ClearNextRetryAt = true
	}

	target := outcome.TargetStatus
	if outcome.Retry && item.Status != target && !statemachine.Allowed(item.Status, target) {
		// The retry edge leaves from the failure status, so the item passes
		// through it first (e.g. DOWNLOADING -> DOWNLOAD_FAILED -> FOUND).
		if err := o.transition(ctx, item, kind.FailureStatus(), queue.Fields{}); err != nil {
			o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to record failure outcome")
			return
		}
	}
	if err := o.transition(ctx, item, target, fields); err != nil {
		o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to record failure outcome")
		return
	}

	if outcome.Retry {
		o.deps.Log.WithField("item_id", item.ID).WithField("kind", kind).Info("scheduled for retry")
	} else {
		o.deps.Log.WithField("item_id", item.ID).WithField("kind", kind).Warn("retry budget exhausted, permanently failed")
		o.deps.Events.Emit(events.NewDownloadFailed(item.ID, errMsg))
		if o.deps.Metrics != nil {
			o.deps.Metrics.RecordRetryExhausted(kind)
		}
	}
}

package orchestrator

import (
	"context"

	"github.com/vaultshelf/orchestrator/internal/catalogworker"
	"github.com/vaultshelf/orchestrator/internal/events"
	"github.com/vaultshelf/orchestrator/internal/queue"
	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// catalogReporter implements catalogworker.Reporter, translating pool
// callbacks into QueueStore writes and emitted events. It is the only
// bridge between the concurrent catalog worker pool and the
// single-threaded monitor loop's view of queue state; both sides
// synchronize purely through QueueStore reads/writes, never shared memory.
type catalogReporter struct {
	o *Orchestrator
}

// NewCatalogReporter builds the catalogworker.Reporter an Orchestrator's
// catalog pool should be constructed with.
func NewCatalogReporter(o *Orchestrator) catalogworker.Reporter {
	return &catalogReporter{o: o}
}

func (r *catalogReporter) OnProgress(itemID int64, downloadedBytes, totalBytes int64, message string) {
	var progress float64
	if totalBytes > 0 {
		progress = float64(downloadedBytes) / float64(totalBytes) * 100
	}
	ctx := context.Background()
	if err := r.o.deps.Store.Update(ctx, itemID, queue.Fields{Progress: &progress}); err != nil {
		r.o.deps.Log.WithField("item_id", itemID).WithError(err).Error("failed to record catalog download progress")
		return
	}
	r.o.deps.Events.Emit(events.NewDownloadProgress(itemID, progress, 0, 0, message))
}

func (r *catalogReporter) OnOutcome(outcome catalogworker.Outcome) {
	ctx := context.Background()
	item, err := r.o.deps.Store.Get(ctx, outcome.ItemID)
	if err != nil {
		r.o.deps.Log.WithField("item_id", outcome.ItemID).WithError(err).Error("failed to load item for catalog outcome")
		return
	}

	if outcome.Cancelled {
		return
	}

	if outcome.Err != nil {
		r.o.failItem(ctx, item, statemachine.FailureAudibleDownload, outcome.Err.Error())
		return
	}

	tempPath := outcome.Result.AudioPath
	voucherPath := outcome.Result.VoucherPath
	format := string(outcome.Result.Format)
	if err := r.o.transition(ctx, item, statemachine.Complete, queue.Fields{
		TempPath:    &tempPath,
		VoucherPath: &voucherPath,
		Format:      &format,
	}); err != nil {
		r.o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to enter COMPLETE after catalog download")
		return
	}
	r.o.deps.Events.Emit(events.NewDownloadCompleted(item.ID))
}

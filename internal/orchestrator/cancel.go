package orchestrator

import (
	"context"
	"fmt"
	"os"

	"github.com/vaultshelf/orchestrator/internal/queue"
	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// ErrCancelNotAllowed is returned when an item's current status never
// permits cancellation.
var ErrCancelNotAllowed = fmt.Errorf("orchestrator: item cannot be cancelled from its current status")

// Cancel moves item to CANCELLED and runs whatever per-state cleanup that
// status implies. Cancellation is allowed from every status except the
// three that represent finished work: IMPORTED, CANCELLED itself, and
// SEEDING_COMPLETE.
func (o *Orchestrator) Cancel(ctx context.Context, itemID int64) error {
	item, err := o.deps.Store.Get(ctx, itemID)
	if err != nil {
		return err
	}

	if item.Status == statemachine.Imported || item.Status == statemachine.Cancelled || item.Status == statemachine.SeedingComplete {
		return ErrCancelNotAllowed
	}

	if !statemachine.Allowed(item.Status, statemachine.Cancelled) {
		return ErrCancelNotAllowed
	}

	o.cleanupForCancel(ctx, item)

	return o.transition(ctx, item, statemachine.Cancelled, queue.Fields{})
}

// cleanupForCancel releases whatever external resources the item's current
// status implies it holds: an in-flight catalog worker, a download client
// registration, or temp/converted files already on disk.
func (o *Orchestrator) cleanupForCancel(ctx context.Context, item *queue.Item) {
	switch item.Status {
	case statemachine.AudibleDownloading:
		if o.deps.CatalogPool != nil {
			o.deps.CatalogPool.Cancel(item.ID)
		}
	case statemachine.Downloading, statemachine.Paused, statemachine.Seeding:
		if adapter, ok := o.adapterByName(item.ClientName); ok && item.ClientID != "" {
			if err := adapter.Remove(ctx, item.ClientID, true); err != nil {
				o.deps.Log.WithField("item_id", item.ID).WithError(err).Warn("failed to remove client download on cancel")
			}
		}
	}

	for _, p := range []string{item.TempPath, item.VoucherPath, item.ConvertedPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			o.deps.Log.WithField("item_id", item.ID).WithError(err).Warn("failed to remove file on cancel")
		}
	}

	removeEmptyParents(o.cfg.TempDownloadPath, item.TempPath, o.deps.Log)
	removeEmptyParents(o.cfg.TempConversionPath, item.ConvertedPath, o.deps.Log)
}

package orchestrator

import (
	"context"

	"github.com/vaultshelf/orchestrator/internal/download"
	"github.com/vaultshelf/orchestrator/internal/events"
	"github.com/vaultshelf/orchestrator/internal/queue"
	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// monitorDownloads polls every torrent/magnet item currently in flight
// (DOWNLOADING or SEEDING) against its assigned client adapter and
// advances the pipeline on completion. Kind=catalog items are not polled
// here — their progress and completion arrive as callbacks from the
// catalog worker pool via CatalogReporter.
func (o *Orchestrator) monitorDownloads(ctx context.Context) {
	o.pollStatus(ctx, statemachine.Downloading)
	o.pollStatus(ctx, statemachine.Seeding)
}

func (o *Orchestrator) pollStatus(ctx context.Context, status statemachine.Status) {
	items, err := o.deps.Store.List(ctx, status, 0, 0)
	if err != nil {
		o.deps.Log.WithError(err).WithField("status", status).Error("failed to list in-flight items")
		return
	}

	for _, item := range items {
		adapter, ok := o.adapterByName(item.ClientName)
		if !ok {
			o.deps.Log.WithField("item_id", item.ID).WithField("client", item.ClientName).Warn("no adapter registered for client name")
			continue
		}

		snapshot, err := adapter.Status(ctx, item.ClientID)
		if err != nil {
			if status == statemachine.Downloading {
				o.failItem(ctx, item, statemachine.FailureDownload, err.Error())
			} else {
				o.deps.Log.WithField("item_id", item.ID).WithError(err).Warn("failed to poll seeding status")
			}
			continue
		}

		switch status {
		case statemachine.Downloading:
			o.advanceDownloading(ctx, item, adapter, snapshot)
		case statemachine.Seeding:
			o.advanceSeeding(ctx, item, adapter, snapshot)
		}
	}
}

func (o *Orchestrator) advanceDownloading(ctx context.Context, item *queue.Item, adapter download.Adapter, snapshot *download.Snapshot) {
	if snapshot.State == "error" {
		o.failItem(ctx, item, statemachine.FailureDownload, "download client reported an error state")
		return
	}

	progress := snapshot.Progress
	if err := o.deps.Store.Update(ctx, item.ID, queue.Fields{Progress: &progress}); err != nil {
		o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to record progress")
		return
	}
	o.deps.Events.Emit(events.NewDownloadProgress(item.ID, progress, snapshot.DownloadSpeedBPS, snapshot.ETASeconds, ""))

	if progress < 100.0 {
		return
	}

	localPath := snapshot.SavePath
	if o.deps.PathMapper != nil {
		localPath = o.deps.PathMapper.ToLocal(snapshot.SavePath)
	}
	if err := o.transition(ctx, item, statemachine.Complete, queue.Fields{TempPath: &localPath}); err != nil {
		o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to enter COMPLETE")
		return
	}
	o.deps.Events.Emit(events.NewDownloadCompleted(item.ID))
}

// advanceSeeding checks whether a seeding torrent has met its ratio, time,
// or adapter-defined completion goal; any one of the three ends seeding.
func (o *Orchestrator) advanceSeeding(ctx context.Context, item *queue.Item, adapter download.Adapter, snapshot *download.Snapshot) {
	ratio := snapshot.Ratio
	seedSeconds := snapshot.SeedingTimeSeconds
	if err := o.deps.Store.Update(ctx, item.ID, queue.Fields{
		SeedingRatio:       &ratio,
		SeedingTimeSeconds: &seedSeconds,
	}); err != nil {
		o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to record seeding stats")
	}

	done := adapter.IsSeedingComplete(*snapshot)
	if snapshot.SeedRatioLimit != nil && snapshot.Ratio >= *snapshot.SeedRatioLimit {
		done = true
	}
	if snapshot.SeedTimeLimitSecs != nil && snapshot.SeedingTimeSeconds >= *snapshot.SeedTimeLimitSecs {
		done = true
	}
	if !done {
		return
	}

	if err := o.transition(ctx, item, statemachine.SeedingComplete, queue.Fields{}); err != nil {
		o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to enter SEEDING_COMPLETE")
		return
	}

	if err := o.deps.Store.Delete(ctx, item.ID); err != nil {
		o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to delete completed seeding item")
	}
}

func (o *Orchestrator) adapterByName(name string) (download.Adapter, bool) {
	for _, a := range o.deps.Adapters {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

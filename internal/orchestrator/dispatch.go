package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/vaultshelf/orchestrator/internal/catalogworker"
	"github.com/vaultshelf/orchestrator/internal/download"
	"github.com/vaultshelf/orchestrator/internal/events"
	"github.com/vaultshelf/orchestrator/internal/queue"
	"github.com/vaultshelf/orchestrator/internal/search"
	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// processQueue first gives every item left in SEARCHING by a retried search
// failure its next attempt, then fills every available search slot with a
// QUEUED item, then fills every available download slot with a FOUND item.
// Items whose next_retry_at lies in the future are skipped. It never blocks
// waiting on a slot that's momentarily full — whatever doesn't fit this
// tick runs on the next one.
func (o *Orchestrator) processQueue(ctx context.Context) {
	retrying, err := o.deps.Store.List(ctx, statemachine.Searching, 0, 0)
	if err != nil {
		o.deps.Log.WithError(err).Error("failed to list searching items")
	}
	for _, item := range retrying {
		o.dispatchSearch(ctx, item)
	}

	stats, err := o.deps.Store.Statistics(ctx)
	if err != nil {
		o.deps.Log.WithError(err).Error("failed to read queue statistics")
		return
	}

	available := o.cfg.MaxActiveSearches - stats[statemachine.Searching]
	if available > 0 {
		items, err := o.deps.Store.List(ctx, statemachine.Queued, available, 0)
		if err != nil {
			o.deps.Log.WithError(err).Error("failed to list queued items")
		}
		for _, item := range items {
			if item.NextRetryAt != nil && item.NextRetryAt.After(o.deps.Clock()) {
				continue
			}
			if item.Kind == queue.KindCatalog {
				o.startCatalogDownload(ctx, item)
				continue
			}
			o.dispatchSearch(ctx, item)
		}
	}

	activeDownloads := stats[statemachine.Downloading] + stats[statemachine.AudibleDownloading]
	downloadSlots := o.cfg.MaxConcurrentDownloads - activeDownloads
	if downloadSlots > 0 {
		found, err := o.deps.Store.List(ctx, statemachine.Found, downloadSlots, 0)
		if err != nil {
			o.deps.Log.WithError(err).Error("failed to list found items")
		}
		for _, item := range found {
			if item.NextRetryAt != nil && item.NextRetryAt.After(o.deps.Clock()) {
				continue
			}
			o.dispatchDownload(ctx, item)
		}
	}
}

// dispatchSearch moves a QUEUED item to SEARCHING and runs the search
// adapter. Kind=catalog items never pass through here; they go straight
// to the catalog worker pool since there is nothing to search for.
func (o *Orchestrator) dispatchSearch(ctx context.Context, item *queue.Item) {
	if err := o.transition(ctx, item, statemachine.Searching, queue.Fields{}); err != nil {
		o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to enter SEARCHING")
		return
	}

	var title, author string
	if o.deps.Library != nil {
		entry, err := o.deps.Library.Lookup(ctx, item.CatalogID)
		if err != nil {
			o.deps.Log.WithField("item_id", item.ID).WithError(err).Warn("library lookup failed, searching without title/author")
		} else {
			title, author = entry.Title, entry.Author
		}
	}

	results, err := o.deps.Search.Search(ctx, title, author, item.CatalogID)
	if err != nil {
		o.failItem(ctx, item, statemachine.FailureSearch, err.Error())
		return
	}

	best, ok, reason := search.Select(results, o.cfg.MinSearchConfidence)
	if !ok {
		o.failItem(ctx, item, statemachine.FailureSearch, reason)
		return
	}

	sourceURL := best.SourceURL
	infoHash := best.SourceInfoHash
	if err := o.transition(ctx, item, statemachine.Found, queue.Fields{
		SourceURL:      &sourceURL,
		SourceInfoHash: &infoHash,
	}); err != nil {
		o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to enter FOUND")
	}
}

// dispatchDownload moves a FOUND torrent/magnet item into DOWNLOADING by
// fetching its actual payload (or resolving its magnet redirect) and
// handing it to a registered DownloadClientAdapter.
func (o *Orchestrator) dispatchDownload(ctx context.Context, item *queue.Item) {
	payload, needsMagnet, err := o.resolveSourcePayload(ctx, item.SourceURL)
	if err != nil {
		o.failItem(ctx, item, statemachine.FailureDownload, err.Error())
		return
	}

	adapter, ok := download.SelectAdapter(o.deps.Adapters, needsMagnet)
	if !ok {
		o.failItem(ctx, item, statemachine.FailureDownload, "no registered download adapter accepts this source")
		return
	}

	assignedID, err := adapter.Add(ctx, payload, o.cfg.TempDownloadPath, item.CatalogID, false, item.SourceInfoHash)
	if err != nil {
		o.failItem(ctx, item, statemachine.FailureDownload, fmt.Sprintf("%s: %v", adapter.Name(), err))
		return
	}

	clientName := adapter.Name()
	if err := o.transition(ctx, item, statemachine.Downloading, queue.Fields{
		ClientName: &clientName,
		ClientID:   &assignedID,
	}); err != nil {
		o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to enter DOWNLOADING")
		return
	}
	o.deps.Events.Emit(events.NewDownloadStarted(item.ID))
}

// resolveSourcePayload turns a FOUND item's source URL into the bytes (or
// magnet URI) its adapter needs. A magnet URL passes straight through; a
// loopback-resolving torrent URL is rewritten through the configured
// external override before fetching, since the download client may run
// outside this process's network namespace.
func (o *Orchestrator) resolveSourcePayload(ctx context.Context, sourceURL string) (payload []byte, needsMagnet bool, err error) {
	if strings.HasPrefix(sourceURL, "magnet:") {
		return []byte(sourceURL), true, nil
	}
	if o.deps.Fetcher == nil {
		return []byte(sourceURL), false, nil
	}

	rewritten, ok := download.RewriteLoopback(sourceURL, o.cfg.ExternalBaseURLOverride)
	if !ok {
		return nil, false, fmt.Errorf("source URL resolves to a loopback address with no external override configured")
	}

	result, err := o.deps.Fetcher.Fetch(ctx, rewritten)
	if err != nil {
		return nil, false, err
	}
	if result.MagnetURI != "" {
		return []byte(result.MagnetURI), true, nil
	}
	return result.Bytes, false, nil
}

// startCatalogDownload submits a kind=catalog item to the bounded catalog
// worker pool. It is called from the QUEUED slot-filling pass since
// catalog items have no search stage: the catalog id is itself the only
// lookup key the Downloader needs.
//
// Before dispatching, it verifies the catalog identifier is actually
// owned via the library store; an unowned item fails fast as a permanent
// AUDIBLE_DOWNLOAD_FAILED without consuming a retry, since no amount of
// waiting makes an entry that was never purchased downloadable. The pool
// slot is reserved and the item is moved to AUDIBLE_DOWNLOADING before the
// job is actually started, so the pool's completion callback can never
// run against an item still sitting in QUEUED.
func (o *Orchestrator) startCatalogDownload(ctx context.Context, item *queue.Item) {
	if o.deps.CatalogPool == nil {
		o.failItem(ctx, item, statemachine.FailureAudibleDownload, "no catalog worker pool configured")
		return
	}

	if o.deps.Library != nil {
		entry, err := o.deps.Library.Lookup(ctx, item.CatalogID)
		if err != nil {
			o.failItem(ctx, item, statemachine.FailureAudibleDownload, fmt.Sprintf("library lookup: %v", err))
			return
		}
		if result := catalogworker.AssessOwnership(entry); !result.Owned {
			reason := result.Reason
			if err := o.transition(ctx, item, statemachine.AudibleDownloadFailed, queue.Fields{LastError: &reason}); err != nil {
				o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to enter AUDIBLE_DOWNLOAD_FAILED")
				return
			}
			o.deps.Events.Emit(events.NewDownloadFailed(item.ID, reason))
			return
		}
	}

	if !o.deps.CatalogPool.Reserve(item.ID) {
		return
	}

	formatPref := catalogworker.FormatPref(item.Format)
	if formatPref == "" {
		formatPref = catalogworker.FormatEncryptedAWithFallbackToB
	}

	if err := o.transition(ctx, item, statemachine.AudibleDownloading, queue.Fields{}); err != nil {
		o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to enter AUDIBLE_DOWNLOADING")
		o.deps.CatalogPool.Release(item.ID)
		return
	}

	o.deps.CatalogPool.Start(ctx, catalogworker.Job{
		ItemID:        item.ID,
		CatalogID:     item.CatalogID,
		OutputDir:     o.cfg.TempDownloadPath,
		Filename:      item.CatalogID,
		FormatPref:    formatPref,
		AllowFallback: formatPref == catalogworker.FormatEncryptedAWithFallbackToB,
	})
	o.deps.Events.Emit(events.NewDownloadStarted(item.ID))
}

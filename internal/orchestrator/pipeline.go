package orchestrator

import (
	"os"

	"context"

	"github.com/vaultshelf/orchestrator/internal/convert"
	"github.com/vaultshelf/orchestrator/internal/events"
	"github.com/vaultshelf/orchestrator/internal/importer"
	"github.com/vaultshelf/orchestrator/internal/queue"
	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

// processPipeline advances every item sitting in a post-download stage:
// deciding whether conversion is needed, running it, importing the result,
// and handing seeding-enabled torrents off to advanceSeeding on the next
// monitorDownloads pass.
func (o *Orchestrator) processPipeline(ctx context.Context) {
	o.processCompleteItems(ctx)
	o.processConvertingItems(ctx)
	o.processConvertedItems(ctx)
	o.processImportingItems(ctx)
	o.processImportedItems(ctx)
}

func (o *Orchestrator) processCompleteItems(ctx context.Context) {
	items, err := o.deps.Store.List(ctx, statemachine.Complete, 0, 0)
	if err != nil {
		o.deps.Log.WithError(err).Error("failed to list COMPLETE items")
		return
	}
	for _, item := range items {
		needsConversion := convert.RequiresConversion(item.TempPath, convert.CatalogFormat(item.Format))
		target := statemachine.Importing
		if needsConversion {
			target = statemachine.Converting
		}
		if err := o.transition(ctx, item, target, queue.Fields{}); err != nil {
			o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to leave COMPLETE")
		}
	}
}

func (o *Orchestrator) processConvertingItems(ctx context.Context) {
	if o.deps.Converter == nil {
		return
	}
	items, err := o.deps.Store.List(ctx, statemachine.Converting, 0, 0)
	if err != nil {
		o.deps.Log.WithError(err).Error("failed to list CONVERTING items")
		return
	}

	for _, item := range items {
		req := convert.Request{
			SourcePath:  item.TempPath,
			VoucherPath: item.VoucherPath,
			Format:      convert.CatalogFormat(item.Format),
			OutputDir:   o.cfg.TempConversionPath,
			OutputName:  item.CatalogID,
		}

		if err := convert.Validate(req); err != nil {
			// A missing voucher on an encrypted-B source never resolves by
			// retrying, so this skips the retry budget entirely.
			errMsg := err.Error()
			if terr := o.transition(ctx, item, statemachine.ConversionFailed, queue.Fields{LastError: &errMsg}); terr != nil {
				o.deps.Log.WithField("item_id", item.ID).WithError(terr).Error("failed to enter CONVERSION_FAILED")
				continue
			}
			o.deps.Events.Emit(events.NewDownloadFailed(item.ID, errMsg))
			continue
		}

		result, err := o.deps.Converter.Convert(ctx, req)
		if err != nil {
			o.failItem(ctx, item, statemachine.FailureConversion, err.Error())
			continue
		}

		outputPath := result.OutputPath
		if err := o.transition(ctx, item, statemachine.Converted, queue.Fields{ConvertedPath: &outputPath}); err != nil {
			o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to enter CONVERTED")
		}
	}
}

func (o *Orchestrator) processConvertedItems(ctx context.Context) {
	items, err := o.deps.Store.List(ctx, statemachine.Converted, 0, 0)
	if err != nil {
		o.deps.Log.WithError(err).Error("failed to list CONVERTED items")
		return
	}
	for _, item := range items {
		if err := o.transition(ctx, item, statemachine.Importing, queue.Fields{}); err != nil {
			o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to leave CONVERTED")
		}
	}
}

func (o *Orchestrator) processImportingItems(ctx context.Context) {
	items, err := o.deps.Store.List(ctx, statemachine.Importing, 0, 0)
	if err != nil {
		o.deps.Log.WithError(err).Error("failed to list IMPORTING items")
		return
	}

	for _, item := range items {
		source := item.ConvertedPath
		if source == "" {
			source = item.TempPath
		}

		isTorrent := item.Kind == queue.KindTorrent
		seedingThisItem := isTorrent && o.cfg.SeedingEnabled
		mode := importer.SelectMode(isTorrent, seedingThisItem)

		var title, author string
		if o.deps.Library != nil {
			entry, err := o.deps.Library.Lookup(ctx, item.CatalogID)
			if err != nil {
				o.deps.Log.WithField("item_id", item.ID).WithError(err).Warn("library lookup failed, naming from catalog id only")
			} else {
				title, author = entry.Title, entry.Author
			}
		}

		ext := extensionOf(source)
		destination := importer.ResolveDestination(o.cfg.LibraryRoot, o.cfg.NamingTemplate, author, title, item.CatalogID, ext)

		if err := importer.Import(importer.Request{
			SourcePath:      source,
			DestinationPath: destination,
			Mode:            mode,
		}); err != nil {
			o.failItem(ctx, item, statemachine.FailureImport, err.Error())
			continue
		}

		o.cleanupAfterImport(item, seedingThisItem)

		finalPath := destination
		if err := o.transition(ctx, item, statemachine.Imported, queue.Fields{FinalPath: &finalPath}); err != nil {
			o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to enter IMPORTED")
			continue
		}
		o.deps.Events.Emit(events.NewDownloadCompleted(item.ID))
	}
}

func (o *Orchestrator) processImportedItems(ctx context.Context) {
	if !o.cfg.SeedingEnabled {
		return
	}
	items, err := o.deps.Store.List(ctx, statemachine.Imported, 0, 0)
	if err != nil {
		o.deps.Log.WithError(err).Error("failed to list IMPORTED items")
		return
	}
	for _, item := range items {
		if item.Kind != queue.KindTorrent {
			continue
		}
		if err := o.transition(ctx, item, statemachine.Seeding, queue.Fields{}); err != nil {
			o.deps.Log.WithField("item_id", item.ID).WithError(err).Error("failed to enter SEEDING")
		}
	}
}

// cleanupAfterImport removes files the imported artifact no longer needs.
// A seeding torrent keeps its client registration and original file
// (the download client still needs them) and only cleans up conversion
// byproducts; everything else removes the client registration and the
// now-superseded intermediate files.
func (o *Orchestrator) cleanupAfterImport(item *queue.Item, seeding bool) {
	if item.VoucherPath != "" {
		if err := os.Remove(item.VoucherPath); err != nil && !os.IsNotExist(err) {
			o.deps.Log.WithField("item_id", item.ID).WithError(err).Warn("failed to remove voucher file")
		}
	}

	if item.ConvertedPath != "" && item.ConvertedPath != item.FinalPath {
		if err := os.Remove(item.ConvertedPath); err != nil && !os.IsNotExist(err) {
			o.deps.Log.WithField("item_id", item.ID).WithError(err).Warn("failed to remove intermediate converted file")
		}
		removeEmptyParents(o.cfg.TempConversionPath, item.ConvertedPath, o.deps.Log)
	}

	if seeding {
		return
	}

	if item.Kind == queue.KindTorrent && item.TempPath != item.FinalPath {
		if err := os.Remove(item.TempPath); err != nil && !os.IsNotExist(err) {
			o.deps.Log.WithField("item_id", item.ID).WithError(err).Warn("failed to remove original downloaded file")
		}
	}
	if item.TempPath != "" && item.TempPath != item.FinalPath {
		removeEmptyParents(o.cfg.TempDownloadPath, item.TempPath, o.deps.Log)
	}

	if item.ClientName != "" && item.ClientID != "" {
		if adapter, ok := o.adapterByName(item.ClientName); ok {
			if err := adapter.Remove(context.Background(), item.ClientID, false); err != nil {
				o.deps.Log.WithField("item_id", item.ID).WithError(err).Warn("failed to remove download from client")
			}
		}
	}
}

func extensionOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

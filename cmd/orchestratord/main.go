// Command orchestratord runs the download orchestration core: it loads
// configuration, connects the queue database, wires every adapter, and
// drives the monitor loop until told to stop.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gotorrent "github.com/anacrolix/torrent"

	"github.com/vaultshelf/orchestrator/internal/catalogworker"
	"github.com/vaultshelf/orchestrator/internal/config"
	"github.com/vaultshelf/orchestrator/internal/convert"
	"github.com/vaultshelf/orchestrator/internal/download"
	"github.com/vaultshelf/orchestrator/internal/download/torrentclient"
	"github.com/vaultshelf/orchestrator/internal/events"
	"github.com/vaultshelf/orchestrator/internal/librarystore"
	"github.com/vaultshelf/orchestrator/internal/logging"
	"github.com/vaultshelf/orchestrator/internal/metrics"
	"github.com/vaultshelf/orchestrator/internal/orchestrator"
	"github.com/vaultshelf/orchestrator/internal/queue"
	"github.com/vaultshelf/orchestrator/internal/retry"
	"github.com/vaultshelf/orchestrator/internal/search"
	"github.com/vaultshelf/orchestrator/internal/statemachine"
)

func main() {
	configPath := os.Getenv("ORCHESTRATOR_CONFIG_FILE")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	mainLog, err := logging.New(logging.Config{
		Level:    cfg.LogLevel,
		ToStdout: true,
		File:     cfg.LogFile,
	}, logging.ComponentMain)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	mainLog.Info("starting orchestratord")

	db, err := queue.Connect(cfg.ConnectionString(), mainLog.WithComponent(logging.ComponentQueue))
	if err != nil {
		mainLog.WithError(err).Fatal("failed to connect to queue database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.Migrate(ctx, db); err != nil {
		mainLog.WithError(err).Fatal("failed to run queue migrations")
	}

	store := queue.NewPostgresStore(db, mainLog.WithComponent(logging.ComponentQueue))

	torrentClient, err := newTorrentClient(cfg, db, mainLog)
	if err != nil {
		mainLog.WithError(err).Fatal("failed to start embedded torrent client")
	}
	defer torrentClient.Close()

	pathMapper := download.NewPathMapper(convertPathMappings(cfg.TorrentClientPathMapping), "", "")
	fetcher := download.NewFetcher(convertSessions(cfg.DirectProviderSessions), nil, 30*time.Second, mainLog.WithComponent(logging.ComponentDownload))

	searchAdapter := newSearchAdapter(cfg, mainLog)

	hub := events.NewHub(20, mainLog.WithComponent(logging.ComponentEvents))
	wsHandler := events.NewHandler(hub, mainLog.WithComponent(logging.ComponentEvents))

	metricsCollectors := metrics.New()

	retryPolicy := retry.New(convertRetryBudgets(cfg.RetryBudgets), cfg.RetryBackoffSeconds)

	converter := convert.NewFFmpegConverter(cfg.FFmpegPath, cfg.ActivationBytes, mainLog.WithComponent(logging.ComponentConvert))

	catalogLog := mainLog.WithComponent(logging.ComponentCatalog)
	catalogDownloader := catalogworker.NewHTTPDownloader(cfg.CatalogBaseURL, cfg.CatalogAuthToken, 10*time.Minute, catalogLog)
	libraryStore := librarystore.NewHTTPStore(cfg.CatalogBaseURL, cfg.CatalogAuthToken, 10*time.Second, mainLog.WithComponent(logging.ComponentCatalog))

	orch := orchestrator.New(orchestrator.Deps{
		Store:      store,
		Search:     searchAdapter,
		Adapters:   []download.Adapter{torrentClient},
		Fetcher:    fetcher,
		Converter:  converter,
		PathMapper: pathMapper,
		Retry:      retryPolicy,
		Events:     hub,
		Metrics:    metricsCollectors,
		Library:    libraryStore,
		Clock:      time.Now,
		Log:        mainLog.WithComponent(logging.ComponentOrchestrator),
	}, orchestrator.Settings{
		PollingInterval:         time.Duration(cfg.PollingIntervalSeconds) * time.Second,
		MaxActiveSearches:       cfg.MaxActiveSearches,
		MaxConcurrentDownloads:  cfg.MaxConcurrentDownloads,
		MinSearchConfidence:     cfg.MinSearchConfidence,
		SeedingEnabled:          cfg.SeedingEnabled,
		WaitForSeeding:          cfg.WaitForSeedingCompletion,
		DeleteSourceOnImport:    cfg.DeleteSourceAfterImport,
		TempDownloadPath:        cfg.TempDownloadPath,
		TempConversionPath:      cfg.TempConversionPath,
		LibraryRoot:             cfg.LibraryRoot,
		NamingTemplate:          cfg.NamingTemplate,
		ExternalBaseURLOverride: cfg.ExternalBaseURLOverride,
	})


	catalogPool := catalogworker.NewPool(cfg.CatalogConcurrency, catalogDownloader, orchestrator.NewCatalogReporter(orch), catalogLog)
	orch.SetCatalogPool(catalogPool)

	mux := http.NewServeMux()
	mux.Handle("/events", wsHandler)
	mux.Handle("/metrics", metrics.Handler())
	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}

	go func() {
		mainLog.WithField("addr", cfg.MetricsAddr).Info("starting metrics/events listener")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mainLog.WithError(err).Error("http listener stopped unexpectedly")
		}
	}()

	go func() {
		if err := orch.Run(ctx); err != nil {
			mainLog.WithError(err).Error("monitor loop exited with error")
		}
	}()

	mainLog.Info("orchestratord running, press Ctrl+C to stop")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	mainLog.Info("shutdown signal received, stopping")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		mainLog.WithError(err).Warn("http listener did not shut down cleanly")
	}

	mainLog.Info("orchestratord stopped")
}

func newTorrentClient(cfg *config.Config, db *sql.DB, mainLog *logging.Logger) (*torrentclient.Client, error) {
	if err := os.MkdirAll(cfg.TorrentDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create torrent data directory: %w", err)
	}

	torrentCfg := gotorrent.NewDefaultClientConfig()
	torrentCfg.DataDir = cfg.TorrentDataDir
	torrentCfg.Seed = cfg.SeedingEnabled
	torrentCfg.ListenPort = cfg.TorrentListenPort

	return torrentclient.New(torrentCfg, db, cfg.SeedRatioLimit, cfg.SeedTimeLimitSeconds, mainLog.WithComponent(logging.ComponentDownload))
}

func newSearchAdapter(cfg *config.Config, mainLog *logging.Logger) search.Adapter {
	return search.NewIndexerAdapter(cfg.IndexerBaseURL, cfg.IndexerAPIKey, 30*time.Second, mainLog.WithComponent(logging.ComponentSearch))
}

func convertPathMappings(in []config.PathMapping) []download.Mapping {
	out := make([]download.Mapping, 0, len(in))
	for _, m := range in {
		out = append(out, download.Mapping{Remote: m.Remote, Local: m.Local})
	}
	return out
}

func convertSessions(in map[string]config.DirectProviderSession) map[string]download.DirectProviderSession {
	out := make(map[string]download.DirectProviderSession, len(in))
	for host, s := range in {
		out[host] = download.DirectProviderSession{Host: s.Host, Token: s.Token, BaseURL: s.BaseURL}
	}
	return out
}

func convertRetryBudgets(in map[string]int) retry.Budgets {
	if len(in) == 0 {
		return nil
	}
	out := make(retry.Budgets, len(in))
	for k, v := range in {
		out[statemachine.FailureKind(k)] = v
	}
	return out
}

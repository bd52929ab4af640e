// Package config holds the typed Config the orchestrator is constructed
// with. Defaults are set in code; an optional YAML file may override them;
// environment variables take precedence over both.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// PathMapping is one entry of torrent_client_path_mappings: a prefix the
// external client sees, and the prefix the orchestrator sees for the same
// storage.
type PathMapping struct {
	Remote string
	Local  string
}

// DirectProviderSession is a session/cookie credential for a direct torrent
// provider requiring an authenticated fetch.
type DirectProviderSession struct {
	Host    string
	Token   string
	BaseURL string
}

// Config is provided to the orchestrator once at construction; no core
// component parses flags, files, or environment variables itself.
type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Monitor loop
	PollingIntervalSeconds int
	MaxActiveSearches      int
	MaxConcurrentDownloads int
	CatalogConcurrency     int

	// Retry
	RetryBackoffSeconds int
	RetryBudgets        map[string]int

	// Seeding
	SeedingEnabled           bool
	SeedRatioLimit           float64
	SeedTimeLimitSeconds     int64
	DeleteSourceAfterImport  bool
	KeepTorrentActive        bool
	WaitForSeedingCompletion bool

	// Filesystem
	TempDownloadPath         string
	TempConversionPath       string
	TorrentClientPathMapping []PathMapping

	// Embedded torrent client
	TorrentDataDir    string
	TorrentListenPort int

	// Source fetching
	ExternalBaseURLOverride string
	DirectProviderSessions  map[string]DirectProviderSession

	// Search
	MinSearchConfidence int
	IndexerBaseURL      string
	IndexerAPIKey       string

	// Catalog downloads
	CatalogBaseURL   string
	CatalogAuthToken string

	// Conversion
	FFmpegPath      string
	ActivationBytes string

	// Import
	LibraryRoot    string
	NamingTemplate string

	// Ambient
	LogLevel    string
	LogFile     string
	MetricsAddr string
}

// Load builds a Config from defaults, an optional YAML file at path (a
// missing file is skipped), then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				if !os.IsNotExist(err) {
					return nil, fmt.Errorf("config: read %s: %w", path, err)
				}
			}
		} else {
			applyFile(cfg, v)
		}
	}

	applyEnv(cfg)

	if cfg.DBUser == "" {
		return nil, fmt.Errorf("config: DB_USER must be set (file or environment)")
	}
	if cfg.DBPassword == "" {
		return nil, fmt.Errorf("config: DB_PASSWORD must be set (file or environment)")
	}
	if cfg.PollingIntervalSeconds < 1 {
		cfg.PollingIntervalSeconds = 1
	}
	if cfg.MaxActiveSearches < 1 {
		cfg.MaxActiveSearches = 1
	}
	if cfg.MaxConcurrentDownloads < 1 {
		cfg.MaxConcurrentDownloads = 1
	}
	if cfg.CatalogConcurrency < 1 {
		cfg.CatalogConcurrency = 1
	}
	if cfg.CatalogConcurrency > 8 {
		cfg.CatalogConcurrency = 8
	}
	if cfg.RetryBackoffSeconds < 10 {
		cfg.RetryBackoffSeconds = 10
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		DBHost: "localhost",
		DBPort: 5432,
		DBName: "orchestrator",

		PollingIntervalSeconds: 2,
		MaxActiveSearches:      2,
		MaxConcurrentDownloads: 2,
		CatalogConcurrency:     1,

		RetryBackoffSeconds: 10,
		RetryBudgets: map[string]int{
			"SEARCH_FAILED":           3,
			"DOWNLOAD_FAILED":         2,
			"AUDIBLE_DOWNLOAD_FAILED": 2,
			"CONVERSION_FAILED":       1,
			"IMPORT_FAILED":           2,
		},

		SeedingEnabled:           false,
		SeedRatioLimit:           2.0,
		SeedTimeLimitSeconds:     604800,
		DeleteSourceAfterImport:  false,
		KeepTorrentActive:        true,
		WaitForSeedingCompletion: true,

		TempDownloadPath:   "/var/lib/orchestrator/downloads",
		TempConversionPath: "/var/lib/orchestrator/conversion",
		TorrentDataDir:     "/var/lib/orchestrator/torrents",

		MinSearchConfidence: 85,

		LibraryRoot:    "/var/lib/orchestrator/library",
		NamingTemplate: "{author}/{title}/{title}.{ext}",

		LogLevel:    "info",
		MetricsAddr: ":9090",
	}
}

func applyFile(cfg *Config, v *viper.Viper) {
	if v.IsSet("db.host") {
		cfg.DBHost = v.GetString("db.host")
	}
	if v.IsSet("db.port") {
		cfg.DBPort = v.GetInt("db.port")
	}
	if v.IsSet("db.name") {
		cfg.DBName = v.GetString("db.name")
	}
	if v.IsSet("db.user") {
		cfg.DBUser = v.GetString("db.user")
	}
	if v.IsSet("db.password") {
		cfg.DBPassword = v.GetString("db.password")
	}
	if v.IsSet("polling_interval_seconds") {
		cfg.PollingIntervalSeconds = v.GetInt("polling_interval_seconds")
	}
	if v.IsSet("max_active_searches") {
		cfg.MaxActiveSearches = v.GetInt("max_active_searches")
	}
	if v.IsSet("max_concurrent_downloads") {
		cfg.MaxConcurrentDownloads = v.GetInt("max_concurrent_downloads")
	}
	if v.IsSet("catalog_concurrency") {
		cfg.CatalogConcurrency = v.GetInt("catalog_concurrency")
	}
	if v.IsSet("retry_backoff_seconds") {
		cfg.RetryBackoffSeconds = v.GetInt("retry_backoff_seconds")
	}
	if v.IsSet("retry_budgets") {
		budgets := v.GetStringMapString("retry_budgets")
		for k, val := range budgets {
			if n, err := strconv.Atoi(val); err == nil {
				cfg.RetryBudgets[strings.ToUpper(k)] = n
			}
		}
	}
	if v.IsSet("seeding_enabled") {
		cfg.SeedingEnabled = v.GetBool("seeding_enabled")
	}
	if v.IsSet("seed_ratio_limit") {
		cfg.SeedRatioLimit = v.GetFloat64("seed_ratio_limit")
	}
	if v.IsSet("seed_time_limit_seconds") {
		cfg.SeedTimeLimitSeconds = v.GetInt64("seed_time_limit_seconds")
	}
	if v.IsSet("delete_source_after_import") {
		cfg.DeleteSourceAfterImport = v.GetBool("delete_source_after_import")
	}
	if v.IsSet("keep_torrent_active") {
		cfg.KeepTorrentActive = v.GetBool("keep_torrent_active")
	}
	if v.IsSet("wait_for_seeding_completion") {
		cfg.WaitForSeedingCompletion = v.GetBool("wait_for_seeding_completion")
	}
	if v.IsSet("temp_download_path") {
		cfg.TempDownloadPath = v.GetString("temp_download_path")
	}
	if v.IsSet("temp_conversion_path") {
		cfg.TempConversionPath = v.GetString("temp_conversion_path")
	}
	if v.IsSet("torrent_data_dir") {
		cfg.TorrentDataDir = v.GetString("torrent_data_dir")
	}
	if v.IsSet("torrent_listen_port") {
		cfg.TorrentListenPort = v.GetInt("torrent_listen_port")
	}
	if v.IsSet("external_base_url_override") {
		cfg.ExternalBaseURLOverride = v.GetString("external_base_url_override")
	}
	if v.IsSet("min_search_confidence") {
		cfg.MinSearchConfidence = v.GetInt("min_search_confidence")
	}
	if v.IsSet("indexer_base_url") {
		cfg.IndexerBaseURL = v.GetString("indexer_base_url")
	}
	if v.IsSet("indexer_api_key") {
		cfg.IndexerAPIKey = v.GetString("indexer_api_key")
	}
	if v.IsSet("catalog_base_url") {
		cfg.CatalogBaseURL = v.GetString("catalog_base_url")
	}
	if v.IsSet("catalog_auth_token") {
		cfg.CatalogAuthToken = v.GetString("catalog_auth_token")
	}
	if v.IsSet("ffmpeg_path") {
		cfg.FFmpegPath = v.GetString("ffmpeg_path")
	}
	if v.IsSet("activation_bytes") {
		cfg.ActivationBytes = v.GetString("activation_bytes")
	}
	if v.IsSet("library_root") {
		cfg.LibraryRoot = v.GetString("library_root")
	}
	if v.IsSet("naming_template") {
		cfg.NamingTemplate = v.GetString("naming_template")
	}
	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("log_file") {
		cfg.LogFile = v.GetString("log_file")
	}
	if v.IsSet("metrics_addr") {
		cfg.MetricsAddr = v.GetString("metrics_addr")
	}

	var mappings []map[string]string
	if err := v.UnmarshalKey("torrent_client_path_mappings", &mappings); err == nil {
		for _, m := range mappings {
			cfg.TorrentClientPathMapping = append(cfg.TorrentClientPathMapping, PathMapping{
				Remote: m["remote"],
				Local:  m["local"],
			})
		}
	}

	sessions := v.GetStringMap("direct_provider_sessions")
	if len(sessions) > 0 {
		cfg.DirectProviderSessions = make(map[string]DirectProviderSession, len(sessions))
		for host := range sessions {
			cfg.DirectProviderSessions[host] = DirectProviderSession{
				Host:    host,
				Token:   v.GetString("direct_provider_sessions." + host + ".token"),
				BaseURL: v.GetString("direct_provider_sessions." + host + ".base_url"),
			}
		}
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.DBHost = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DBPort = n
		}
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.DBUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DBPassword = v
	}
	if v := os.Getenv("POLLING_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollingIntervalSeconds = n
		}
	}
	if v := os.Getenv("MAX_ACTIVE_SEARCHES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxActiveSearches = n
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_DOWNLOADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentDownloads = n
		}
	}
	if v := os.Getenv("CATALOG_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CatalogConcurrency = n
		}
	}
	if v := os.Getenv("RETRY_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetryBackoffSeconds = n
		}
	}
	if v := os.Getenv("SEEDING_ENABLED"); v != "" {
		cfg.SeedingEnabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("DELETE_SOURCE_AFTER_IMPORT"); v != "" {
		cfg.DeleteSourceAfterImport = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("TEMP_DOWNLOAD_PATH"); v != "" {
		cfg.TempDownloadPath = v
	}
	if v := os.Getenv("TEMP_CONVERSION_PATH"); v != "" {
		cfg.TempConversionPath = v
	}
	if v := os.Getenv("TORRENT_DATA_DIR"); v != "" {
		cfg.TorrentDataDir = v
	}
	if v := os.Getenv("TORRENT_LISTEN_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TorrentListenPort = n
		}
	}
	if v := os.Getenv("EXTERNAL_BASE_URL_OVERRIDE"); v != "" {
		cfg.ExternalBaseURLOverride = v
	}
	if v := os.Getenv("MIN_SEARCH_CONFIDENCE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinSearchConfidence = n
		}
	}
	if v := os.Getenv("INDEXER_BASE_URL"); v != "" {
		cfg.IndexerBaseURL = v
	}
	if v := os.Getenv("INDEXER_API_KEY"); v != "" {
		cfg.IndexerAPIKey = v
	}
	if v := os.Getenv("CATALOG_BASE_URL"); v != "" {
		cfg.CatalogBaseURL = v
	}
	if v := os.Getenv("CATALOG_AUTH_TOKEN"); v != "" {
		cfg.CatalogAuthToken = v
	}
	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		cfg.FFmpegPath = v
	}
	if v := os.Getenv("ACTIVATION_BYTES"); v != "" {
		cfg.ActivationBytes = v
	}
	if v := os.Getenv("LIBRARY_ROOT"); v != "" {
		cfg.LibraryRoot = v
	}
	if v := os.Getenv("NAMING_TEMPLATE"); v != "" {
		cfg.NamingTemplate = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

// ConnectionString returns a PostgreSQL connection string for this config.
func (cfg *Config) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)
}

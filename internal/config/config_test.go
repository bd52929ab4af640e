package config

import (
	"os"
	"testing"
)

func TestLoadRequiresDBCredentials(t *testing.T) {
	os.Unsetenv("DB_USER")
	os.Unsetenv("DB_PASSWORD")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error without DB_USER/DB_PASSWORD set")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	os.Setenv("DB_USER", "orchestrator")
	os.Setenv("DB_PASSWORD", "secret")
	os.Setenv("POLLING_INTERVAL_SECONDS", "5")
	defer func() {
		os.Unsetenv("DB_USER")
		os.Unsetenv("DB_PASSWORD")
		os.Unsetenv("POLLING_INTERVAL_SECONDS")
	}()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollingIntervalSeconds != 5 {
		t.Errorf("PollingIntervalSeconds = %d, want 5", cfg.PollingIntervalSeconds)
	}
	if cfg.DBUser != "orchestrator" {
		t.Errorf("DBUser = %q, want orchestrator", cfg.DBUser)
	}
}

func TestLoadClampsRetryBackoffFloor(t *testing.T) {
	os.Setenv("DB_USER", "orchestrator")
	os.Setenv("DB_PASSWORD", "secret")
	os.Setenv("RETRY_BACKOFF_SECONDS", "1")
	defer func() {
		os.Unsetenv("DB_USER")
		os.Unsetenv("DB_PASSWORD")
		os.Unsetenv("RETRY_BACKOFF_SECONDS")
	}()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RetryBackoffSeconds != 10 {
		t.Errorf("RetryBackoffSeconds = %d, want floor of 10", cfg.RetryBackoffSeconds)
	}
}

func TestDefaultRetryBudgets(t *testing.T) {
	cfg := defaults()
	want := map[string]int{
		"SEARCH_FAILED":           3,
		"DOWNLOAD_FAILED":         2,
		"AUDIBLE_DOWNLOAD_FAILED": 2,
		"CONVERSION_FAILED":       1,
		"IMPORT_FAILED":           2,
	}
	for k, v := range want {
		if cfg.RetryBudgets[k] != v {
			t.Errorf("RetryBudgets[%s] = %d, want %d", k, cfg.RetryBudgets[k], v)
		}
	}
}

package config

import (
	"os"
	"path"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Fetcher.PollIntervalSeconds != DefaultPollIntervalSeconds {
		t.Errorf("poll interval = %d", cfg.Fetcher.PollIntervalSeconds)
	}
	if cfg.Fetcher.Concurrency != 1 {
		t.Errorf("concurrency = %d", cfg.Fetcher.Concurrency)
	}
	if cfg.MaxStaleness() != time.Duration(DefaultMaxStalenessHours)*time.Hour {
		t.Errorf("max staleness = %s", cfg.MaxStaleness())
	}
	if cfg.Hub.UserAgent != DefaultUserAgent {
		t.Errorf("user agent = %q", cfg.Hub.UserAgent)
	}
}

func TestParseFileAndEnvOverride(t *testing.T) {
	file := path.Join(t.TempDir(), "config.json")
	data := `{
		"hub": {"url": "https://hub.example.org", "user_agent": "cfg-agent"},
		"fetcher": {"poll_interval": 2, "concurrency": 4, "max_staleness": 48, "validate_content": true},
		"storage": {"dir": "/tmp/exports", "filestorage": {"backend": "s3", "region": "us-east-1", "bucket": "b"}},
		"tracking": {"path": "/tmp/manifest.db"}
	}`
	if err := os.WriteFile(file, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("HUB_URL", "https://override.example.org")
	defer os.Unsetenv("HUB_URL")

	cfg, err := Parse(file)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Hub.URL != "https://override.example.org" {
		t.Errorf("env override lost: url = %q", cfg.Hub.URL)
	}
	if cfg.Hub.UserAgent != "cfg-agent" {
		t.Errorf("user agent = %q", cfg.Hub.UserAgent)
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Errorf("poll interval = %s", cfg.PollInterval())
	}
	if !cfg.Fetcher.ValidateContent {
		t.Error("validate_content not parsed")
	}
	if cfg.Storage.Backend["bucket"] != "b" {
		t.Errorf("storage backend = %v", cfg.Storage.Backend)
	}
	if cfg.Tracking.Path != "/tmp/manifest.db" {
		t.Errorf("tracking path = %q", cfg.Tracking.Path)
	}
}

func TestParseMissingFile(t *testing.T) {
	if _, err := Parse(path.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

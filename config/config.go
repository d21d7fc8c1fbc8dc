package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the app's configuration. Every field has a usable zero-ish
// default applied by Parse, so running without a config file works.
type Config struct {
	Hub struct {
		// URL is the catalog service root. Empty selects the public hub.
		URL string `json:"url"`

		UserAgent string `json:"user_agent"`
	} `json:"hub"`

	Fetcher struct {
		// PollIntervalSeconds is the pause between polling rounds.
		PollIntervalSeconds int `json:"poll_interval"`

		// Concurrency bounds parallel status checks within one round.
		// 1 polls each dataset sequentially.
		Concurrency int `json:"concurrency"`

		// MaxStalenessHours is the staleness window: exports older than
		// this are re-triggered.
		MaxStalenessHours int `json:"max_staleness"`

		// ValidateContent enables libmagic validation of downloaded
		// payloads against their format's expected content type.
		ValidateContent bool `json:"validate_content"`
	} `json:"fetcher"`

	Storage struct {
		// Dir is the local destination directory. Overridden by --path.
		Dir string `json:"dir"`

		// Backend selects a non-local sink, e.g.
		// {"backend": "s3", "region": "us-east-1", "bucket": "exports"}.
		Backend map[string]string `json:"filestorage"`
	} `json:"storage"`

	Tracking struct {
		// Path of the sqlite run manifest. Empty disables tracking.
		Path string `json:"path"`
	} `json:"tracking"`
}

// Defaults applied by Parse when the file (or a field) is absent.
const (
	DefaultPollIntervalSeconds = 15
	DefaultMaxStalenessHours   = 7 * 24
	DefaultUserAgent           = "arcgis-hub-cli"
)

// Parse loads filename (optional, "" skips the file) and applies environment
// overrides on top. A .env file in the working directory is honored via
// godotenv. Recognized variables: HUB_URL, HUB_USER_AGENT.
func Parse(filename string) (Config, error) {
	cfg := Config{}

	if filename != "" {
		f, err := os.Open(filename)
		if err != nil {
			return cfg, err
		}
		defer f.Close()

		dec := json.NewDecoder(f)
		dec.UseNumber()
		if err := dec.Decode(&cfg); err != nil {
			return cfg, err
		}
	}

	// Missing .env files are fine; explicit env vars still apply.
	godotenv.Load()
	if url := os.Getenv("HUB_URL"); url != "" {
		cfg.Hub.URL = url
	}
	if ua := os.Getenv("HUB_USER_AGENT"); ua != "" {
		cfg.Hub.UserAgent = ua
	}

	if cfg.Hub.UserAgent == "" {
		cfg.Hub.UserAgent = DefaultUserAgent
	}
	if cfg.Fetcher.PollIntervalSeconds <= 0 {
		cfg.Fetcher.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if cfg.Fetcher.Concurrency <= 0 {
		cfg.Fetcher.Concurrency = 1
	}
	if cfg.Fetcher.MaxStalenessHours <= 0 {
		cfg.Fetcher.MaxStalenessHours = DefaultMaxStalenessHours
	}

	return cfg, nil
}

// PollInterval returns the configured pause between polling rounds.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Fetcher.PollIntervalSeconds) * time.Second
}

// MaxStaleness returns the configured staleness window.
func (c *Config) MaxStaleness() time.Duration {
	return time.Duration(c.Fetcher.MaxStalenessHours) * time.Hour
}

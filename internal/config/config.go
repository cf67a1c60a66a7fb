// Package config loads and validates the pictofeed configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config is the complete pictofeed configuration.
type Config struct {
	Relay      Relay      `yaml:"relay"`
	Identity   Identity   `yaml:"identity"`
	Feed       Feed       `yaml:"feed"`
	Engagement Engagement `yaml:"engagement"`
	Logging    Logging    `yaml:"logging"`
}

// Relay contains the relay connection settings. Only one relay connection is
// modeled.
type Relay struct {
	URL    string      `yaml:"url"`
	Policy RelayPolicy `yaml:"policy"`
}

// RelayPolicy contains connect retry policies.
type RelayPolicy struct {
	ConnectTimeoutMs int   `yaml:"connect_timeout_ms"`
	BackoffMs        []int `yaml:"backoff_ms"`
}

// Identity contains the Nostr account keys. The secret key is never read from
// the config file, only from the PICTOFEED_NSEC environment variable.
type Identity struct {
	DefaultNpub string `yaml:"default_npub"`
	Nsec        string `yaml:"-"`
}

// Feed contains pagination settings.
type Feed struct {
	PageSize          int `yaml:"page_size"`
	NearEndDebounceMs int `yaml:"near_end_debounce_ms"`
}

// Engagement contains engagement-counter settings.
type Engagement struct {
	DefaultZapSats int64  `yaml:"default_zap_sats"`
	ReactionEmoji  string `yaml:"reaction_emoji"`
}

// Logging contains logging configuration.
type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Relay: Relay{
			URL: "wss://relay.damus.io",
			Policy: RelayPolicy{
				ConnectTimeoutMs: 5000,
				BackoffMs:        []int{500, 1500, 5000},
			},
		},
		Feed: Feed{
			PageSize:          10,
			NearEndDebounceMs: 200,
		},
		Engagement: Engagement{
			DefaultZapSats: 21,
			ReactionEmoji:  "❤️",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a configuration file. Values missing from the file
// keep their defaults; an empty path loads defaults plus environment
// overrides only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies PICTOFEED_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("PICTOFEED_RELAY_URL"); url != "" {
		cfg.Relay.URL = url
	}
	if npub := os.Getenv("PICTOFEED_DEFAULT_NPUB"); npub != "" {
		cfg.Identity.DefaultNpub = npub
	}
	if nsec := os.Getenv("PICTOFEED_NSEC"); nsec != "" {
		cfg.Identity.Nsec = nsec
	}
	if sats := os.Getenv("PICTOFEED_ZAP_SATS"); sats != "" {
		if n, err := strconv.ParseInt(sats, 10, 64); err == nil {
			cfg.Engagement.DefaultZapSats = n
		}
	}
}

// Validate checks if a configuration is valid.
func Validate(cfg *Config) error {
	if err := validation.ValidateStruct(&cfg.Relay,
		validation.Field(&cfg.Relay.URL, validation.Required, validation.By(relayURL)),
	); err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	if err := validation.ValidateStruct(&cfg.Identity,
		validation.Field(&cfg.Identity.DefaultNpub, validation.Required, validation.By(npubKey)),
	); err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	if err := validation.ValidateStruct(&cfg.Feed,
		validation.Field(&cfg.Feed.PageSize, validation.Required, validation.Min(1), validation.Max(500)),
		validation.Field(&cfg.Feed.NearEndDebounceMs, validation.Min(0), validation.Max(5000)),
	); err != nil {
		return fmt.Errorf("feed: %w", err)
	}

	if err := validation.ValidateStruct(&cfg.Engagement,
		validation.Field(&cfg.Engagement.DefaultZapSats, validation.Required, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("engagement: %w", err)
	}

	if err := validation.ValidateStruct(&cfg.Logging,
		validation.Field(&cfg.Logging.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&cfg.Logging.Format, validation.In("text", "json")),
	); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	return nil
}

func relayURL(value interface{}) error {
	url, _ := value.(string)
	if !strings.HasPrefix(url, "wss://") && !strings.HasPrefix(url, "ws://") {
		return fmt.Errorf("must start with ws:// or wss://")
	}
	return nil
}

func npubKey(value interface{}) error {
	npub, _ := value.(string)
	if !strings.HasPrefix(npub, "npub1") {
		return fmt.Errorf("must start with 'npub1'")
	}
	return nil
}

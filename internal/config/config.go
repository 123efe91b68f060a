// Package config loads and validates the run configuration. A run carries
// no state beyond this file plus the cursor database; anything malformed is
// fatal at startup, before any source is touched.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tclabs/sheetsync/internal/retry"
)

// Duration wraps time.Duration for YAML ("250ms", "1s", ...).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full run configuration.
type Config struct {
	Master   Master `yaml:"master"`
	Sync     Sync   `yaml:"sync"`
	Shard    Shard  `yaml:"shard"`
	Retry    Retry  `yaml:"retry"`
	API      API    `yaml:"api"`
	CursorDB string `yaml:"cursor_db"`
}

// Master locates the consolidated ledger and its source registry.
type Master struct {
	SpreadsheetID string `yaml:"spreadsheet_id"`
	TicketsTab    string `yaml:"tickets_tab"`
	SourceTab     string `yaml:"source_tab"`
}

// Sync tunes a single run.
type Sync struct {
	// ChunkRows bounds how many rows one (source, block) pair examines per
	// run. The bound protects remote quota and the scheduler's runtime
	// budget; a backlog drains across runs.
	ChunkRows int `yaml:"chunk_rows"`

	// InitFromNow makes newly seen pairs start at the block's current end
	// instead of its first data row, skipping history.
	InitFromNow bool `yaml:"init_from_now"`

	Workers     int      `yaml:"workers"`
	Throttle    Duration `yaml:"throttle"`     // pause after each chunk read
	SourcePause Duration `yaml:"source_pause"` // pause between pairs on a worker
}

// Shard splits the source list across independent scheduled jobs. A run
// processes sources whose list position i satisfies i % total == index.
type Shard struct {
	Total int `yaml:"total"`
	Index int `yaml:"index"`
}

// Retry bounds backoff for transient remote failures.
type Retry struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
	MaxDelay    Duration `yaml:"max_delay"`
}

// API locates the spreadsheet values service. The bearer token is read
// from the environment variable named by TokenEnv, never from the file.
type API struct {
	BaseURL  string `yaml:"base_url"`
	TokenEnv string `yaml:"token_env"`
}

// Default returns the configuration the sync has run with operationally.
func Default() Config {
	return Config{
		Master: Master{
			TicketsTab: "Tickets",
			SourceTab:  "Source",
		},
		Sync: Sync{
			ChunkRows:   500,
			Workers:     4,
			Throttle:    Duration(250 * time.Millisecond),
			SourcePause: Duration(time.Second),
		},
		Shard: Shard{Total: 1, Index: 0},
		Retry: Retry{
			MaxAttempts: 6,
			BaseDelay:   Duration(800 * time.Millisecond),
			MaxDelay:    Duration(20 * time.Second),
		},
		API: API{
			BaseURL:  "https://sheets.googleapis.com",
			TokenEnv: "SHEETSYNC_TOKEN",
		},
		CursorDB: "sheetsync.db",
	}
}

// Load reads, parses, and validates a configuration file. Unknown keys are
// rejected: a typo silently falling back to a default has bitten this sync
// before.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := unmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func unmarshalStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every field a run depends on. Called by Parse; exported
// for callers that build a Config programmatically.
func (c Config) Validate() error {
	if c.Master.SpreadsheetID == "" {
		return fmt.Errorf("master.spreadsheet_id is required")
	}
	if c.Master.TicketsTab == "" {
		return fmt.Errorf("master.tickets_tab is required")
	}
	if c.Master.SourceTab == "" {
		return fmt.Errorf("master.source_tab is required")
	}
	if c.Sync.ChunkRows < 1 {
		return fmt.Errorf("sync.chunk_rows must be >= 1, got %d", c.Sync.ChunkRows)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be >= 1, got %d", c.Sync.Workers)
	}
	if c.Shard.Total < 1 {
		return fmt.Errorf("shard.total must be >= 1, got %d", c.Shard.Total)
	}
	if c.Shard.Index < 0 || c.Shard.Index >= c.Shard.Total {
		return fmt.Errorf("shard.index must be in [0, %d), got %d", c.Shard.Total, c.Shard.Index)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay.Std() > c.Retry.MaxDelay.Std() {
		return fmt.Errorf("retry.base_delay %s exceeds retry.max_delay %s", c.Retry.BaseDelay.Std(), c.Retry.MaxDelay.Std())
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.CursorDB == "" {
		return fmt.Errorf("cursor_db is required")
	}
	return nil
}

// RetryPolicy converts the retry section into the engine's policy value.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay.Std(),
		MaxDelay:    c.Retry.MaxDelay.Std(),
	}
}

// Token resolves the API bearer token from the configured environment
// variable. Empty is allowed (test servers); the remote API will reject
// unauthenticated calls on its own.
func (c Config) Token() string {
	if c.API.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.API.TokenEnv)
}

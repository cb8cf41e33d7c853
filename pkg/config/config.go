// Package config provides configuration file support for lockguard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lockguard/lockguard/pkg/errclass"
	"github.com/lockguard/lockguard/pkg/model"
	"github.com/lockguard/lockguard/pkg/webhook"
)

// DirName is the state directory created under the root.
const DirName = ".lockguard"

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Config represents the lockguard configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Directory DirectoryConfig `yaml:"directory"`
	Engine    EngineConfig    `yaml:"engine"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Webhooks  webhook.Config  `yaml:"webhooks"`
}

// StoreConfig selects where the locks and settings blobs live.
type StoreConfig struct {
	Backend string `yaml:"backend"` // file, sqlite, memory
	Path    string `yaml:"path"`    // relative paths resolve against the state dir
}

// DirectoryConfig points at the host's block database used for
// notebook and ancestor lookups.
type DirectoryConfig struct {
	Backend string `yaml:"backend"` // none, sqlite
	Path    string `yaml:"path"`
}

// EngineConfig tunes the schedulers. Durations use time.ParseDuration syntax.
type EngineConfig struct {
	TickInterval        string `yaml:"tick_interval"`
	FlushInterval       string `yaml:"flush_interval"`
	CountdownInterval   string `yaml:"countdown_interval"`
	DefaultTrustMinutes int    `yaml:"default_trust_minutes"`
	DefaultTimerMinutes int    `yaml:"default_timer_minutes"`
}

// AuditConfig configures the lock event log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// MetricsConfig toggles the Prometheus registry.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendFile,
			Path:    "store",
		},
		Directory: DirectoryConfig{
			Backend: BackendNone,
		},
		Engine: EngineConfig{
			TickInterval:        "1s",
			FlushInterval:       "15s",
			CountdownInterval:   "1s",
			DefaultTrustMinutes: model.DefaultTrustMinutes,
			DefaultTimerMinutes: model.DefaultTimerMinutes,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "audit.jsonl",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Webhooks: webhook.Config{
			MaxRetries: 3,
			RetryDelay: 5 * time.Second,
		},
	}
}

// Path returns the config file location under root.
func Path(root string) string {
	return filepath.Join(root, DirName, "config.yaml")
}

// Load loads configuration from <root>/.lockguard/config.yaml.
// Returns default config if file doesn't exist.
func Load(root string) (*Config, error) {
	return LoadFile(Path(root))
}

// LoadFile loads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil // No config file is OK, use defaults
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errclass.ErrConfigInvalid.WithMessagef("parse %s: %v", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to <root>/.lockguard/config.yaml.
func Save(root string, cfg *Config) error {
	cfgPath := Path(root)

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(cfgPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate rejects unknown backends. Bad durations are not errors; the
// accessors fall back to defaults.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown store backend %q", c.Store.Backend)
	}
	switch c.Directory.Backend {
	case "", BackendNone, BackendSQLite:
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown directory backend %q", c.Directory.Backend)
	}
	for i, h := range c.Webhooks.Hooks {
		if h.Enabled && h.URL == "" {
			return errclass.ErrConfigInvalid.WithMessagef("webhook %d has no url", i)
		}
	}
	return nil
}

// Resolve makes p absolute against the state directory of root.
func Resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, DirName, p)
}

// Tick returns the policy tick interval.
func (e EngineConfig) Tick() time.Duration {
	return parseDuration(e.TickInterval, time.Second)
}

// Flush returns the timer flush interval.
func (e EngineConfig) Flush() time.Duration {
	return parseDuration(e.FlushInterval, 15*time.Second)
}

// Countdown returns the UI countdown tick interval.
func (e EngineConfig) Countdown() time.Duration {
	return parseDuration(e.CountdownInterval, time.Second)
}

// TrustMinutes returns the clamped default trust window.
func (e EngineConfig) TrustMinutes() int {
	return model.ClampMinutes(e.DefaultTrustMinutes, model.DefaultTrustMinutes)
}

// TimerMinutes returns the clamped default timer budget.
func (e EngineConfig) TimerMinutes() int {
	return model.ClampMinutes(e.DefaultTimerMinutes, model.DefaultTimerMinutes)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

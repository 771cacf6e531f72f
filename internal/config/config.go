package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/janekbaraniewski/usagebar/internal/tier"
)

const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
)

type ProviderConfig struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"base_url,omitempty"`
}

type ProvidersConfig struct {
	Claude ProviderConfig `json:"claude"`
	Zai    ProviderConfig `json:"zai"`
	Amp    ProviderConfig `json:"amp"`
}

type ClaudeConfig struct {
	// CredentialsPath overrides ~/.claude/.credentials.json discovery.
	CredentialsPath string `json:"credentials_path,omitempty"`
}

type TiersConfig struct {
	ZaiThresholds tier.ZaiThresholds `json:"zai_thresholds"`
}

type HistoryConfig struct {
	Enabled       bool   `json:"enabled"`
	Path          string `json:"path,omitempty"`
	RetentionDays int    `json:"retention_days"`
}

type Config struct {
	PollIntervalSeconds   int             `json:"poll_interval_seconds"`
	RequestTimeoutSeconds int             `json:"request_timeout_seconds"`
	UsageCacheTTLSeconds  int             `json:"usage_cache_ttl_seconds"`
	CredentialBackend     string          `json:"credential_backend"`
	Providers             ProvidersConfig `json:"providers"`
	Claude                ClaudeConfig    `json:"claude"`
	Tiers                 TiersConfig     `json:"tiers"`
	History               HistoryConfig   `json:"history"`
}

func DefaultConfig() Config {
	return Config{
		PollIntervalSeconds:   30,
		RequestTimeoutSeconds: 15,
		UsageCacheTTLSeconds:  30,
		CredentialBackend:     BackendKeyring,
		Providers: ProvidersConfig{
			Claude: ProviderConfig{Enabled: true},
			Zai:    ProviderConfig{Enabled: true},
			Amp:    ProviderConfig{Enabled: true},
		},
		Tiers:   TiersConfig{ZaiThresholds: tier.DefaultZaiThresholds},
		History: HistoryConfig{Enabled: true, RetentionDays: 30},
	}
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) UsageCacheTTL() time.Duration {
	return time.Duration(c.UsageCacheTTLSeconds) * time.Second
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "usagebar")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "usagebar")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

// CredentialsPath is where the file credential backend keeps pasted secrets.
func CredentialsPath() string {
	return filepath.Join(ConfigDir(), "credentials.json")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = def.PollIntervalSeconds
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = def.RequestTimeoutSeconds
	}
	if cfg.UsageCacheTTLSeconds <= 0 {
		cfg.UsageCacheTTLSeconds = def.UsageCacheTTLSeconds
	}
	switch strings.ToLower(strings.TrimSpace(cfg.CredentialBackend)) {
	case BackendFile:
		cfg.CredentialBackend = BackendFile
	default:
		cfg.CredentialBackend = BackendKeyring
	}
	if cfg.Tiers.ZaiThresholds.Max <= 0 {
		cfg.Tiers.ZaiThresholds.Max = def.Tiers.ZaiThresholds.Max
	}
	if cfg.Tiers.ZaiThresholds.Pro <= 0 {
		cfg.Tiers.ZaiThresholds.Pro = def.Tiers.ZaiThresholds.Pro
	}
	if cfg.History.RetentionDays <= 0 {
		cfg.History.RetentionDays = def.History.RetentionDays
	}
}

// saveMu guards read-modify-write cycles on the config file.
var saveMu sync.Mutex

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Update applies fn to the stored config and writes the result back.
func Update(fn func(*Config)) error {
	return UpdateAt(ConfigPath(), fn)
}

func UpdateAt(path string, fn func(*Config)) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	cfg, err := LoadFrom(path)
	if err != nil {
		cfg = DefaultConfig()
	}
	fn(&cfg)
	return SaveTo(path, cfg)
}

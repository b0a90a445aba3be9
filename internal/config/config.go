package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// LocalConfigName is the per-directory config file searched for when no
// explicit path is given
const LocalConfigName = ".octapulse.toml"

// Config holds all engine configuration
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Store         StoreConfig         `toml:"store"`
	Batch         BatchConfig         `toml:"batch"`
	Analyzer      AnalyzerConfig      `toml:"analyzer"`
	Notifications NotificationsConfig `toml:"notifications"`
	Watch         WatchConfig         `toml:"watch"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port the API binds to
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig holds transient blob store settings
type StoreConfig struct {
	UploadTTLSeconds   int    `toml:"upload_ttl_seconds"`
	ArtifactTTLSeconds int    `toml:"artifact_ttl_seconds"`
	SweepSchedule      string `toml:"sweep_schedule"`
}

// UploadTTL returns the upload blob lifetime
func (s StoreConfig) UploadTTL() time.Duration {
	return time.Duration(s.UploadTTLSeconds) * time.Second
}

// ArtifactTTL returns the rendered artifact lifetime
func (s StoreConfig) ArtifactTTL() time.Duration {
	return time.Duration(s.ArtifactTTLSeconds) * time.Second
}

// BatchConfig holds orchestrator settings
type BatchConfig struct {
	MaxBatchSize       int     `toml:"max_batch_size"`
	DefaultConcurrency int     `toml:"default_concurrency"`
	DefaultGridSize    float64 `toml:"default_grid_size_inches"`
	RetentionHours     int     `toml:"retention_hours"`
	RetentionSchedule  string  `toml:"retention_schedule"`
}

// RetentionAge returns how long finished batches stay queryable
func (b BatchConfig) RetentionAge() time.Duration {
	return time.Duration(b.RetentionHours) * time.Hour
}

// AnalyzerConfig holds analyzer backend settings
type AnalyzerConfig struct {
	Mode        string  `toml:"mode"`
	LatencyMS   int     `toml:"latency_ms"`
	FailureRate float64 `toml:"failure_rate"`
}

// Latency returns the simulated per-image processing time
func (a AnalyzerConfig) Latency() time.Duration {
	return time.Duration(a.LatencyMS) * time.Millisecond
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WatchConfig holds image directory watcher settings
type WatchConfig struct {
	Dir           string   `toml:"dir"`
	Extensions    []string `toml:"extensions"`
	DebounceMS    int      `toml:"debounce_ms"`
	MaxFileSizeMB int      `toml:"max_file_size_mb"`
}

// Debounce returns the settle time applied to filesystem events
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// MaxFileSize returns the ingestion size guard in bytes
func (w WatchConfig) MaxFileSize() int64 {
	return int64(w.MaxFileSizeMB) << 20
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Store: StoreConfig{
			UploadTTLSeconds:   3600,
			ArtifactTTLSeconds: 3600,
			SweepSchedule:      "@every 5m",
		},
		Batch: BatchConfig{
			MaxBatchSize:       100,
			DefaultConcurrency: 3,
			DefaultGridSize:    1.0,
			RetentionHours:     24,
			RetentionSchedule:  "@hourly",
		},
		Analyzer: AnalyzerConfig{
			Mode:        "simulated",
			LatencyMS:   150,
			FailureRate: 0,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		Watch: WatchConfig{
			Extensions:    []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif"},
			DebounceMS:    500,
			MaxFileSizeMB: 10,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
// for anything the file does not set. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.Watch.Dir = ExpandPath(cfg.Watch.Dir)
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// LoadWithLocalFallback loads the explicit path when given, otherwise a
// local config discovered by walking up from the working directory,
// otherwise the default location.
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// Save writes the configuration as TOML, creating parent directories
// as needed
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// FindLocalConfig walks from the working directory to the filesystem
// root looking for LocalConfigName. Returns "" when none exists.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// applyEnv overrides selected fields from OCTAPULSE_* variables
func (c *Config) applyEnv() {
	if v := os.Getenv("OCTAPULSE_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("OCTAPULSE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("OCTAPULSE_SLACK_WEBHOOK"); v != "" {
		c.Notifications.SlackWebhook = v
	}
	if v := os.Getenv("OCTAPULSE_WATCH_DIR"); v != "" {
		c.Watch.Dir = ExpandPath(v)
	}
	if v := os.Getenv("OCTAPULSE_ANALYZER_MODE"); v != "" {
		c.Analyzer.Mode = v
	}
}

// Validate rejects configurations the engine cannot start with
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Analyzer.FailureRate < 0 || c.Analyzer.FailureRate > 1 {
		return fmt.Errorf("analyzer failure_rate %v must be within [0, 1]", c.Analyzer.FailureRate)
	}
	if c.Analyzer.Mode != "simulated" {
		return fmt.Errorf("unknown analyzer mode %q", c.Analyzer.Mode)
	}
	if c.Batch.MaxBatchSize < 1 {
		return fmt.Errorf("batch max_batch_size %d must be positive", c.Batch.MaxBatchSize)
	}
	if c.Batch.DefaultConcurrency < 1 {
		return fmt.Errorf("batch default_concurrency %d must be positive", c.Batch.DefaultConcurrency)
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "octapulse", "config.toml")
}

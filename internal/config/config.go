package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Model is the model identifier passed to the generation backend.
	Model string `json:"model"`

	// APIKey is the model API key. Usually left empty here and supplied via
	// the environment (ANTHROPIC_API_KEY / CLAUDE_API_KEY) or a .env file.
	APIKey string `json:"api_key,omitempty"`

	// CacheEnabled toggles the requirements fingerprint cache.
	// Stored as a pointer so an explicit false in config.json is honored.
	CacheEnabled *bool `json:"cache_enabled,omitempty"`

	// CacheTTLSecs is how long a cached generation result stays live.
	CacheTTLSecs int `json:"cache_ttl_secs,omitempty"`

	// CacheMaxEntries bounds the fingerprint cache; the oldest entry is
	// evicted when the cap is exceeded.
	CacheMaxEntries int `json:"cache_max_entries,omitempty"`

	// ModelTimeoutSecs bounds each external model call. A timeout takes the
	// same fallback path as any other model failure.
	ModelTimeoutSecs int `json:"model_timeout_secs,omitempty"`

	// DesignDelayMS is the settling delay of the design stage.
	DesignDelayMS int `json:"design_delay_ms,omitempty"`

	// OutputDir is where generated project files are written, one
	// subdirectory per session. Defaults to baseDir/output.
	OutputDir string `json:"output_dir,omitempty"`

	// ProgressMaxAgeSecs is how long finished session progress records are
	// retained before the reaper drops them.
	ProgressMaxAgeSecs int `json:"progress_max_age_secs,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized.
	// 0 means use sql.DB default. Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	enabled := true
	return &Config{
		Model:              "claude-sonnet-4-20250514",
		CacheEnabled:       &enabled,
		CacheTTLSecs:       3600,
		CacheMaxEntries:    256,
		ModelTimeoutSecs:   120,
		DesignDelayMS:      500,
		ProgressMaxAgeSecs: 3600,
	}
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// ModelTimeout returns the per-call model timeout as a duration.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSecs) * time.Second
}

// DesignDelay returns the design stage settling delay as a duration.
func (c *Config) DesignDelay() time.Duration {
	return time.Duration(c.DesignDelayMS) * time.Millisecond
}

// ProgressMaxAge returns the progress record retention as a duration.
func (c *Config) ProgressMaxAge() time.Duration {
	return time.Duration(c.ProgressMaxAgeSecs) * time.Second
}

// Caching reports whether the fingerprint cache is enabled.
func (c *Config) Caching() bool {
	return c.CacheEnabled == nil || *c.CacheEnabled
}

// Load loads configuration from baseDir/config.json, then applies environment
// overrides. Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.scriptforge.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(baseDir, "output")
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. A .env file in the
// working directory is honored first; a missing file is not an error.
func applyEnv(cfg *Config) {
	_ = godotenv.Load()

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.APIKey = key
	} else if key := os.Getenv("CLAUDE_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if model := os.Getenv("SCRIPTFORGE_MODEL"); model != "" {
		cfg.Model = model
	}
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs. Overlay values take precedence
// for non-zero scalars.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Model = overlay.Model
	if result.Model == "" {
		result.Model = base.Model
	}

	result.APIKey = overlay.APIKey
	if result.APIKey == "" {
		result.APIKey = base.APIKey
	}

	result.CacheEnabled = overlay.CacheEnabled
	if result.CacheEnabled == nil {
		result.CacheEnabled = base.CacheEnabled
	}

	result.CacheTTLSecs = overlay.CacheTTLSecs
	if result.CacheTTLSecs == 0 {
		result.CacheTTLSecs = base.CacheTTLSecs
	}

	result.CacheMaxEntries = overlay.CacheMaxEntries
	if result.CacheMaxEntries == 0 {
		result.CacheMaxEntries = base.CacheMaxEntries
	}

	result.ModelTimeoutSecs = overlay.ModelTimeoutSecs
	if result.ModelTimeoutSecs == 0 {
		result.ModelTimeoutSecs = base.ModelTimeoutSecs
	}

	result.DesignDelayMS = overlay.DesignDelayMS
	if result.DesignDelayMS == 0 {
		result.DesignDelayMS = base.DesignDelayMS
	}

	result.OutputDir = overlay.OutputDir
	if result.OutputDir == "" {
		result.OutputDir = base.OutputDir
	}

	result.ProgressMaxAgeSecs = overlay.ProgressMaxAgeSecs
	if result.ProgressMaxAgeSecs == 0 {
		result.ProgressMaxAgeSecs = base.ProgressMaxAgeSecs
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	return result
}

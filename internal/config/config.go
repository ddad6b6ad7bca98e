package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "KBINGEST_CONFIG"
	dataDirEnv    = "KBINGEST_DATA_DIR"
	apiKeyEnv     = "ANTHROPIC_API_KEY"
)

// Config holds the settings required across the pipeline.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Paths      PathsConfig      `yaml:"paths"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Generation GenerationConfig `yaml:"generation"`
	Health     HealthConfig     `yaml:"health"`
}

// LoggingConfig controls slog construction.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// PathsConfig locates the externally owned data layout.
type PathsConfig struct {
	DataDir    string `yaml:"dataDir"`
	SourcesFn  string `yaml:"sourcesFile"`
	StateFn    string `yaml:"stateFile"`
	StagingDir string `yaml:"stagingDir"`
	SchemaFn   string `yaml:"schemaFile"`
	HistoryDB  string `yaml:"historyDb"`
}

// ServiceDir returns the by-service collection directory.
func (p PathsConfig) ServiceDir() string {
	return filepath.Join(p.DataDir, "by-service")
}

// FetchConfig bounds source fetching.
type FetchConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DedupConfig tunes the novelty engine.
type DedupConfig struct {
	Threshold   float64 `yaml:"threshold"`
	CrossSource *bool   `yaml:"crossSource"`
}

// CrossSourceEnabled reports whether in-run novelty suppression spans
// sources. Defaults to true when unset.
func (d DedupConfig) CrossSourceEnabled() bool {
	if d.CrossSource == nil {
		return true
	}
	return *d.CrossSource
}

// GenerationConfig defines how to contact the text-generation service.
type GenerationConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"apiKey"`
	MaxTokens         int           `yaml:"maxTokens"`
	RequestsPerMinute int           `yaml:"requestsPerMinute"`
	Timeout           time.Duration `yaml:"timeout"`
}

// HealthConfig carries thresholds for the health checks.
type HealthConfig struct {
	StaleAfter        time.Duration `yaml:"staleAfter"`
	StagingOverflow   int           `yaml:"stagingOverflow"`
	ConsecutiveEmpty  int           `yaml:"consecutiveEmpty"`
	ConsecutiveErrors int           `yaml:"consecutiveErrors"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dataDirEnv); v != "" {
		c.Paths = pathsFor(v)
	}
	if v := os.Getenv(apiKeyEnv); v != "" {
		c.Generation.APIKey = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Paths.DataDir != "" {
		base.Paths = pathsFor(override.Paths.DataDir)
	}
	if override.Paths.SourcesFn != "" {
		base.Paths.SourcesFn = override.Paths.SourcesFn
	}
	if override.Paths.StateFn != "" {
		base.Paths.StateFn = override.Paths.StateFn
	}
	if override.Paths.StagingDir != "" {
		base.Paths.StagingDir = override.Paths.StagingDir
	}
	if override.Paths.SchemaFn != "" {
		base.Paths.SchemaFn = override.Paths.SchemaFn
	}
	if override.Paths.HistoryDB != "" {
		base.Paths.HistoryDB = override.Paths.HistoryDB
	}

	if override.Fetch.Concurrency > 0 {
		base.Fetch.Concurrency = override.Fetch.Concurrency
	}
	if override.Fetch.Timeout > 0 {
		base.Fetch.Timeout = override.Fetch.Timeout
	}

	if override.Dedup.Threshold > 0 {
		base.Dedup.Threshold = override.Dedup.Threshold
	}
	if override.Dedup.CrossSource != nil {
		base.Dedup.CrossSource = override.Dedup.CrossSource
	}

	if override.Generation.Endpoint != "" {
		base.Generation.Endpoint = override.Generation.Endpoint
	}
	if override.Generation.Model != "" {
		base.Generation.Model = override.Generation.Model
	}
	if override.Generation.APIKey != "" {
		base.Generation.APIKey = override.Generation.APIKey
	}
	if override.Generation.MaxTokens > 0 {
		base.Generation.MaxTokens = override.Generation.MaxTokens
	}
	if override.Generation.RequestsPerMinute > 0 {
		base.Generation.RequestsPerMinute = override.Generation.RequestsPerMinute
	}
	if override.Generation.Timeout > 0 {
		base.Generation.Timeout = override.Generation.Timeout
	}

	if override.Health.StaleAfter > 0 {
		base.Health.StaleAfter = override.Health.StaleAfter
	}
	if override.Health.StagingOverflow > 0 {
		base.Health.StagingOverflow = override.Health.StagingOverflow
	}
	if override.Health.ConsecutiveEmpty > 0 {
		base.Health.ConsecutiveEmpty = override.Health.ConsecutiveEmpty
	}
	if override.Health.ConsecutiveErrors > 0 {
		base.Health.ConsecutiveErrors = override.Health.ConsecutiveErrors
	}

	return base
}

func pathsFor(dataDir string) PathsConfig {
	return PathsConfig{
		DataDir:    dataDir,
		SourcesFn:  filepath.Join(dataDir, "ingest", "sources.json"),
		StateFn:    filepath.Join(dataDir, "ingest", "state.json"),
		StagingDir: filepath.Join(dataDir, "staging"),
		SchemaFn:   filepath.Join(dataDir, "..", "schema", "misconfig-schema.json"),
		HistoryDB:  filepath.Join(dataDir, "ingest", "history.db"),
	}
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Paths:   pathsFor("data"),
		Fetch: FetchConfig{
			Concurrency: 4,
			Timeout:     30 * time.Second,
		},
		Dedup: DedupConfig{
			Threshold: 0.70,
		},
		Generation: GenerationConfig{
			Endpoint:          "https://api.anthropic.com/v1/messages",
			Model:             "claude-sonnet-4-20250514",
			MaxTokens:         2000,
			RequestsPerMinute: 20,
			Timeout:           60 * time.Second,
		},
		Health: HealthConfig{
			StaleAfter:        7 * 24 * time.Hour,
			StagingOverflow:   100,
			ConsecutiveEmpty:  3,
			ConsecutiveErrors: 3,
		},
	}
}

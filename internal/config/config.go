// Package config loads gambit's settings from a YAML file, GAMBIT_*
// environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/discochess/gambit/internal/selector"
)

// FileName is the config file looked up in the working and home
// directories, without extension.
const FileName = ".gambit"

// EnvPrefix prefixes environment overrides: GAMBIT_ENGINE_PATH sets
// engine.path.
const EnvPrefix = "GAMBIT"

// Store backends for data.backend.
const (
	BackendDisk = "disk"
	BackendGCS  = "gcs"
	BackendS3   = "s3"
)

// Tablebase kinds for tablebase.kind.
const (
	TablebaseShard   = "shard"
	TablebaseLichess = "lichess"
	TablebaseNone    = "none"
)

// Metrics sinks for metrics.sink.
const (
	MetricsNone       = "none"
	MetricsLog        = "log"
	MetricsPrometheus = "prometheus"
)

// Config is the full gambit configuration.
type Config struct {
	Data      DataConfig      `mapstructure:"data" yaml:"data"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Tablebase TablebaseConfig `mapstructure:"tablebase" yaml:"tablebase"`
	Journal   JournalConfig   `mapstructure:"journal" yaml:"journal"`
	Policy    PolicyConfig    `mapstructure:"policy" yaml:"policy"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// DataConfig locates the built repertoire and tablebase tables. The
// manifest is always read from Dir; shards come from Backend.
type DataConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	Backend     string `mapstructure:"backend" yaml:"backend"`
	Bucket      string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Prefix      string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Region      string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	CacheShards int    `mapstructure:"cache_shards" yaml:"cache_shards"`
}

// EngineConfig configures the UCI engine process.
type EngineConfig struct {
	Path             string            `mapstructure:"path" yaml:"path"`
	Args             []string          `mapstructure:"args" yaml:"args,omitempty"`
	Threads          int               `mapstructure:"threads" yaml:"threads"`
	HashMB           int               `mapstructure:"hash_mb" yaml:"hash_mb"`
	MultiPV          int               `mapstructure:"multipv" yaml:"multipv"`
	Contempt         *int              `mapstructure:"contempt" yaml:"contempt,omitempty"`
	Options          map[string]string `mapstructure:"options" yaml:"options,omitempty"`
	HandshakeTimeout string            `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
}

// TablebaseConfig selects the endgame database.
type TablebaseConfig struct {
	Kind      string  `mapstructure:"kind" yaml:"kind"`
	URL       string  `mapstructure:"url" yaml:"url,omitempty"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
	UserAgent string  `mapstructure:"user_agent" yaml:"user_agent,omitempty"`
}

// JournalConfig configures persistence. An empty Dir keeps everything in
// memory.
type JournalConfig struct {
	Dir       string `mapstructure:"dir" yaml:"dir"`
	CacheSize int    `mapstructure:"cache_size" yaml:"cache_size"`
}

// PolicyConfig mirrors selector.Policy with durations as strings.
type PolicyConfig struct {
	TablebaseCutoff int     `mapstructure:"tablebase_cutoff" yaml:"tablebase_cutoff"`
	BookCutoff      int     `mapstructure:"book_cutoff" yaml:"book_cutoff"`
	BookProbability float64 `mapstructure:"book_probability" yaml:"book_probability"`
	ExplorationRate float64 `mapstructure:"exploration_rate" yaml:"exploration_rate"`
	BaseTime        string  `mapstructure:"base_time" yaml:"base_time"`
	BaseDepth       int     `mapstructure:"base_depth" yaml:"base_depth"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// MetricsConfig selects the stats sink. Addr serves /metrics for the
// prometheus sink.
type MetricsConfig struct {
	Sink string `mapstructure:"sink" yaml:"sink"`
	Addr string `mapstructure:"addr" yaml:"addr,omitempty"`
}

// Default returns the default configuration.
func Default() Config {
	p := selector.DefaultPolicy()
	return Config{
		Data: DataConfig{
			Dir:         "./data",
			Backend:     BackendDisk,
			CacheShards: 64,
		},
		Engine: EngineConfig{
			Path:             "stockfish",
			Threads:          1,
			HashMB:           128,
			MultiPV:          3,
			HandshakeTimeout: "10s",
		},
		Tablebase: TablebaseConfig{
			Kind:      TablebaseShard,
			RateLimit: 2,
			Burst:     1,
		},
		Journal: JournalConfig{
			CacheSize: 4096,
		},
		Policy: PolicyConfig{
			TablebaseCutoff: p.TablebaseCutoff,
			BookCutoff:      p.BookCutoff,
			BookProbability: p.BookProbability,
			ExplorationRate: p.ExplorationRate,
			BaseTime:        p.BaseTime.String(),
			BaseDepth:       p.BaseDepth,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Sink: MetricsNone,
		},
	}
}

// SetDefaults registers every default with v, so environment variables
// override keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data.dir", d.Data.Dir)
	v.SetDefault("data.backend", d.Data.Backend)
	v.SetDefault("data.bucket", d.Data.Bucket)
	v.SetDefault("data.prefix", d.Data.Prefix)
	v.SetDefault("data.region", d.Data.Region)
	v.SetDefault("data.endpoint", d.Data.Endpoint)
	v.SetDefault("data.cache_shards", d.Data.CacheShards)

	v.SetDefault("engine.path", d.Engine.Path)
	v.SetDefault("engine.threads", d.Engine.Threads)
	v.SetDefault("engine.hash_mb", d.Engine.HashMB)
	v.SetDefault("engine.multipv", d.Engine.MultiPV)
	v.SetDefault("engine.handshake_timeout", d.Engine.HandshakeTimeout)

	v.SetDefault("tablebase.kind", d.Tablebase.Kind)
	v.SetDefault("tablebase.url", d.Tablebase.URL)
	v.SetDefault("tablebase.rate_limit", d.Tablebase.RateLimit)
	v.SetDefault("tablebase.burst", d.Tablebase.Burst)
	v.SetDefault("tablebase.user_agent", d.Tablebase.UserAgent)

	v.SetDefault("journal.dir", d.Journal.Dir)
	v.SetDefault("journal.cache_size", d.Journal.CacheSize)

	v.SetDefault("policy.tablebase_cutoff", d.Policy.TablebaseCutoff)
	v.SetDefault("policy.book_cutoff", d.Policy.BookCutoff)
	v.SetDefault("policy.book_probability", d.Policy.BookProbability)
	v.SetDefault("policy.exploration_rate", d.Policy.ExplorationRate)
	v.SetDefault("policy.base_time", d.Policy.BaseTime)
	v.SetDefault("policy.base_depth", d.Policy.BaseDepth)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)

	v.SetDefault("metrics.sink", d.Metrics.Sink)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
}

// New returns a viper instance reading cfgFile, or .gambit.yaml from the
// working or home directory when cfgFile is empty. A missing default
// file is not an error.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the components reject.
func (c *Config) Validate() error {
	switch c.Data.Backend {
	case BackendDisk:
	case BackendGCS, BackendS3:
		if c.Data.Bucket == "" {
			return fmt.Errorf("data.bucket is required for the %s backend", c.Data.Backend)
		}
	default:
		return fmt.Errorf("invalid data.backend: %s (must be disk, gcs or s3)", c.Data.Backend)
	}
	if c.Data.CacheShards < 0 {
		return fmt.Errorf("data.cache_shards must not be negative, got %d", c.Data.CacheShards)
	}

	if c.Engine.Path == "" {
		return errors.New("engine.path is required")
	}
	if _, err := time.ParseDuration(c.Engine.HandshakeTimeout); err != nil {
		return fmt.Errorf("invalid engine.handshake_timeout: %w", err)
	}

	switch c.Tablebase.Kind {
	case TablebaseShard, TablebaseNone:
	case TablebaseLichess:
		if c.Tablebase.RateLimit <= 0 {
			return fmt.Errorf("tablebase.rate_limit must be positive, got %v", c.Tablebase.RateLimit)
		}
	default:
		return fmt.Errorf("invalid tablebase.kind: %s (must be shard, lichess or none)", c.Tablebase.Kind)
	}

	if _, err := c.Policy.Selector(); err != nil {
		return err
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}

	switch c.Metrics.Sink {
	case MetricsNone, MetricsLog, MetricsPrometheus:
	default:
		return fmt.Errorf("invalid metrics.sink: %s (must be none, log or prometheus)", c.Metrics.Sink)
	}
	return nil
}

// Selector converts the policy section into a validated selector.Policy.
func (p PolicyConfig) Selector() (selector.Policy, error) {
	base, err := time.ParseDuration(p.BaseTime)
	if err != nil {
		return selector.Policy{}, fmt.Errorf("invalid policy.base_time: %w", err)
	}
	policy := selector.Policy{
		TablebaseCutoff: p.TablebaseCutoff,
		BookCutoff:      p.BookCutoff,
		BookProbability: p.BookProbability,
		ExplorationRate: p.ExplorationRate,
		BaseTime:        base,
		BaseDepth:       p.BaseDepth,
	}
	if err := policy.Validate(); err != nil {
		return selector.Policy{}, err
	}
	return policy, nil
}

// Timeout returns the parsed handshake timeout.
func (e EngineConfig) Timeout() time.Duration {
	d, _ := time.ParseDuration(e.HandshakeTimeout)
	return d
}

// Logger builds the zap logger described by the log section.
func (l LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

const fileHeader = `# gambit configuration
# Every key can be overridden with a GAMBIT_ environment variable,
# e.g. GAMBIT_ENGINE_PATH=/usr/local/bin/stockfish.

`

// WriteFile writes cfg as YAML. An existing file is only replaced when
// force is set.
func WriteFile(path string, cfg Config, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(fileHeader), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

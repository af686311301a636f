// Package config loads composer runtime configuration from defaults, an
// optional YAML or TOML file and COMPOSER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
	"github.com/danielpatrickdp/adaptive-prompt/internal/eval"
	"github.com/danielpatrickdp/adaptive-prompt/internal/update"
)

// EnvPrefix prefixes every environment override, e.g. COMPOSER_STORE_DRIVER.
const EnvPrefix = "COMPOSER"

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// #region config-types

// Config is the runtime configuration.
type Config struct {
	// File is the config file that was read, empty when none was found.
	File       string           `mapstructure:"-"`
	Log        LogConfig        `mapstructure:"log"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Heuristics HeuristicsConfig `mapstructure:"heuristics"`
	Update     UpdateConfig     `mapstructure:"update"`
	Eval       EvalConfig       `mapstructure:"eval"`
	Store      StoreConfig      `mapstructure:"store"`
	Server     ServerConfig     `mapstructure:"server"`
	Trace      TraceConfig      `mapstructure:"trace"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// CatalogConfig selects the module catalog. An empty Dir means the embedded catalog.
type CatalogConfig struct {
	Dir      string        `mapstructure:"dir"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// HeuristicsConfig holds server-wide gate defaults. Decisions override them.
type HeuristicsConfig struct {
	Mode            string             `mapstructure:"mode"`
	MinScore        *float64           `mapstructure:"min_score"`
	HalfLife        time.Duration      `mapstructure:"half_life"`
	CooldownTurns   *float64           `mapstructure:"cooldown_turns"`
	SignalHalfLives map[string]float64 `mapstructure:"signal_half_lives"` // seconds
}

// UpdateConfig controls signal pruning between turns.
type UpdateConfig struct {
	PruneBelow float64 `mapstructure:"prune_below"`
}

// EvalConfig controls post-composition checks.
type EvalConfig struct {
	MaxPromptBytes int  `mapstructure:"max_prompt_bytes"`
	RequirePrompt  bool `mapstructure:"require_prompt"`
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Driver      string        `mapstructure:"driver"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
	MaxHistory  int64         `mapstructure:"max_history"`
}

// ServerConfig configures the gRPC listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// TraceConfig controls the composition trace log. Traces live in the SQLite
// database at Path, which defaults to store.sqlite_path.
type TraceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// #endregion config-types

var defaultConfig = Config{
	Log: LogConfig{Level: "info"},
	Catalog: CatalogConfig{
		Debounce: 250 * time.Millisecond,
	},
	Heuristics: HeuristicsConfig{
		Mode:     string(decision.ModeEnabled),
		HalfLife: 20 * time.Minute,
	},
	Update: UpdateConfig{PruneBelow: update.DefaultConfig().PruneBelow},
	Eval: EvalConfig{
		MaxPromptBytes: eval.DefaultEvalConfig().MaxPromptBytes,
		RequirePrompt:  eval.DefaultEvalConfig().RequirePrompt,
	},
	Store: StoreConfig{
		Driver:      DriverSQLite,
		SQLitePath:  "composer.db",
		RedisAddr:   "localhost:6379",
		RedisPrefix: "composer",
		MaxHistory:  20,
	},
	Server: ServerConfig{Addr: ":7070"},
	Trace:  TraceConfig{Enabled: true},
}

// Default returns the built-in configuration.
func Default() Config {
	cfg := defaultConfig
	cfg.Trace.Path = cfg.Store.SQLitePath
	return cfg
}

// #region load

// Load reads configuration. path may be empty, in which case ./composer.yaml
// or ./composer.toml is used when present. A missing file is not an error
// unless path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("composer")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || (!errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if cfg.Trace.Path == "" {
		cfg.Trace.Path = cfg.Store.SQLitePath
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", defaultConfig.Log.Level)
	v.SetDefault("log.json", defaultConfig.Log.JSON)

	v.SetDefault("catalog.dir", defaultConfig.Catalog.Dir)
	v.SetDefault("catalog.watch", defaultConfig.Catalog.Watch)
	v.SetDefault("catalog.debounce", defaultConfig.Catalog.Debounce)

	v.SetDefault("heuristics.mode", defaultConfig.Heuristics.Mode)
	v.SetDefault("heuristics.half_life", defaultConfig.Heuristics.HalfLife)

	v.SetDefault("update.prune_below", defaultConfig.Update.PruneBelow)

	v.SetDefault("eval.max_prompt_bytes", defaultConfig.Eval.MaxPromptBytes)
	v.SetDefault("eval.require_prompt", defaultConfig.Eval.RequirePrompt)

	v.SetDefault("store.driver", defaultConfig.Store.Driver)
	v.SetDefault("store.sqlite_path", defaultConfig.Store.SQLitePath)
	v.SetDefault("store.redis_addr", defaultConfig.Store.RedisAddr)
	v.SetDefault("store.redis_prefix", defaultConfig.Store.RedisPrefix)
	v.SetDefault("store.redis_ttl", defaultConfig.Store.RedisTTL)
	v.SetDefault("store.max_history", defaultConfig.Store.MaxHistory)

	v.SetDefault("server.addr", defaultConfig.Server.Addr)

	v.SetDefault("trace.enabled", defaultConfig.Trace.Enabled)
	v.SetDefault("trace.path", defaultConfig.Trace.Path)
}

// #endregion load

// #region conversions

// HeuristicsDefaults converts the heuristics section into decision defaults.
func (c *Config) HeuristicsDefaults() decision.HeuristicsConfig {
	h := decision.HeuristicsConfig{
		Mode:                   decision.RolloutMode(c.Heuristics.Mode),
		DefaultMinScore:        c.Heuristics.MinScore,
		DefaultHalfLifeSeconds: c.Heuristics.HalfLife.Seconds(),
		DefaultCooldownTurns:   c.Heuristics.CooldownTurns,
	}
	if len(c.Heuristics.SignalHalfLives) > 0 {
		h.SignalHalfLives = make(map[string]float64, len(c.Heuristics.SignalHalfLives))
		for k, v := range c.Heuristics.SignalHalfLives {
			h.SignalHalfLives[k] = v
		}
	}
	return h
}

// UpdateSettings returns the decay parameters used between turns.
func (c *Config) UpdateSettings() update.Config {
	u := update.DefaultConfig()
	if hl := c.Heuristics.HalfLife.Seconds(); hl > 0 {
		u.HalfLifeSeconds = hl
	}
	u.SignalHalfLives = c.HeuristicsDefaults().SignalHalfLives
	u.PruneBelow = c.Update.PruneBelow
	return u
}

// EvalSettings returns the post-composition limits.
func (c *Config) EvalSettings() eval.EvalConfig {
	return eval.EvalConfig{
		MaxPromptBytes: c.Eval.MaxPromptBytes,
		RequirePrompt:  c.Eval.RequirePrompt,
	}
}

// #endregion conversions

package config

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/danielpatrickdp/adaptive-prompt/internal/decision"
)

// Validatable is implemented by config sections that can self-validate.
type Validatable interface {
	Validate() error
}

// Validate checks the log level.
func (c LogConfig) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level %q", c.Level)
	}
	return nil
}

// Validate checks watch settings.
func (c CatalogConfig) Validate() error {
	if c.Watch && c.Dir == "" {
		return errors.New("watch requires dir (the embedded catalog cannot change)")
	}
	if c.Debounce < 0 {
		return errors.New("debounce must be >= 0")
	}
	return nil
}

// Validate checks gate defaults.
func (c HeuristicsConfig) Validate() error {
	switch decision.RolloutMode(c.Mode) {
	case "", decision.ModeEnabled, decision.ModeDisabled, decision.ModeShadow:
	default:
		return fmt.Errorf("invalid mode %q (allowed: %q, %q, %q)", c.Mode, decision.ModeEnabled, decision.ModeDisabled, decision.ModeShadow)
	}
	if c.MinScore != nil && (*c.MinScore < 0 || *c.MinScore > 1) {
		return fmt.Errorf("min_score %v outside [0,1]", *c.MinScore)
	}
	if c.HalfLife < 0 {
		return errors.New("half_life must be >= 0")
	}
	if c.CooldownTurns != nil && *c.CooldownTurns < 0 {
		return errors.New("cooldown_turns must be >= 0")
	}
	for name, hl := range c.SignalHalfLives {
		if hl <= 0 {
			return fmt.Errorf("signal_half_lives.%s must be > 0", name)
		}
	}
	return nil
}

// Validate checks the prune threshold.
func (c UpdateConfig) Validate() error {
	if c.PruneBelow < 0 || c.PruneBelow >= 1 {
		return fmt.Errorf("prune_below %v outside [0,1)", c.PruneBelow)
	}
	return nil
}

// Validate checks prompt limits.
func (c EvalConfig) Validate() error {
	if c.MaxPromptBytes < 0 {
		return errors.New("max_prompt_bytes must be >= 0")
	}
	return nil
}

// Validate checks the driver and the fields it needs.
func (c StoreConfig) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite_path is required for driver sqlite")
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return errors.New("redis_addr is required for driver redis")
		}
		if c.RedisTTL < 0 {
			return errors.New("redis_ttl must be >= 0")
		}
	default:
		return fmt.Errorf("unsupported driver %q (allowed: %q, %q)", c.Driver, DriverSQLite, DriverRedis)
	}
	if c.MaxHistory < 0 {
		return errors.New("max_history must be >= 0")
	}
	return nil
}

// Validate checks the listen address.
func (c ServerConfig) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr is required")
	}
	return nil
}

func (c TraceConfig) Validate() error {
	if c.Enabled && c.Path == "" {
		return errors.New("path is required when enabled=true")
	}
	return nil
}

// Validate validates every section and joins the failures.
func (cfg *Config) Validate() error {
	sections := []struct {
		name string
		v    Validatable
	}{
		{"log", cfg.Log},
		{"catalog", cfg.Catalog},
		{"heuristics", cfg.Heuristics},
		{"update", cfg.Update},
		{"eval", cfg.Eval},
		{"store", cfg.Store},
		{"server", cfg.Server},
		{"trace", cfg.Trace},
	}

	var errs []error
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// Package config loads kitsune settings from flags, the environment and an
// optional .kitsune.yaml file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/atikulmunna/kitsune/internal/buffer"
	"github.com/atikulmunna/kitsune/internal/output"
	"github.com/atikulmunna/kitsune/internal/panel"
	"github.com/atikulmunna/kitsune/internal/session"
	"github.com/atikulmunna/kitsune/internal/tailer"
)

// EnvPrefix prefixes every environment override, e.g. KITSUNE_CAPACITY.
const EnvPrefix = "KITSUNE"

// Config holds every setting.
type Config struct {
	Capacity     int           `mapstructure:"capacity"`
	InitialLines int           `mapstructure:"initial_lines"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ChangeSettle time.Duration `mapstructure:"change_settle"`
	Follow       bool          `mapstructure:"follow"`
	Sync         bool          `mapstructure:"sync"`
	FromStart    bool          `mapstructure:"from_start"`
	Output       string        `mapstructure:"output"`
	SessionFile  string        `mapstructure:"session_file"`
	LogLevel     string        `mapstructure:"log_level"`
	Stats        bool          `mapstructure:"stats"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("capacity", buffer.DefaultCapacity)
	v.SetDefault("initial_lines", tailer.DefaultInitialLines)
	v.SetDefault("poll_interval", tailer.DefaultPollInterval)
	v.SetDefault("change_settle", tailer.DefaultChangeSettle)
	v.SetDefault("follow", true)
	v.SetDefault("sync", true)
	v.SetDefault("from_start", false)
	v.SetDefault("output", "text")
	v.SetDefault("session_file", session.DefaultPath())
	v.SetDefault("log_level", "info")
	v.SetDefault("stats", false)
}

// BindEnv makes KITSUNE_* variables override the config file.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	}
	if c.InitialLines <= 0 {
		return fmt.Errorf("initial_lines must be positive, got %d", c.InitialLines)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.ChangeSettle < 0 {
		return fmt.Errorf("change_settle must not be negative, got %s", c.ChangeSettle)
	}
	if _, err := output.New(c.Output, nil); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// PanelOptions builds the options shared by every panel.
func (c Config) PanelOptions(log logrus.FieldLogger) panel.Options {
	return panel.Options{
		Capacity: c.Capacity,
		Tail: tailer.Options{
			InitialLines: c.InitialLines,
			PollInterval: c.PollInterval,
			ChangeSettle: c.ChangeSettle,
			Logger:       log,
		},
		ReadFromStart: c.FromStart,
		Logger:        log,
	}
}

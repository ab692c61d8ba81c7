package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/danieljhkim/assetmirror/internal/fsops"
)

// EnvPrefix is the prefix for environment overrides, e.g. ASSETMIRROR_MODE.
const EnvPrefix = "ASSETMIRROR"

// Config keys.
const (
	KeyDestination = "destination"
	KeyMode        = "mode"
	KeyConcurrency = "concurrency"
	KeyExclude     = "exclude"
	KeyUnits       = "units"
	KeyLogLevel    = "log.level"
	KeyLogFile     = "log.file"
	KeyMetricsFile = "metrics_file"
	KeyStateDir    = "state_dir"
	KeyDebounce    = "watch.debounce"
)

// Config is the resolved host configuration.
type Config struct {
	Destination string      `mapstructure:"destination"`
	Mode        string      `mapstructure:"mode"`
	Concurrency int         `mapstructure:"concurrency"`
	Exclude     []string    `mapstructure:"exclude"`
	Units       []Unit      `mapstructure:"units"`
	Log         LogConfig   `mapstructure:"log"`
	MetricsFile string      `mapstructure:"metrics_file"`
	StateDir    string      `mapstructure:"state_dir"`
	Watch       WatchConfig `mapstructure:"watch"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// WatchConfig configures the watch command.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// Unit is one configured asset directory.
type Unit struct {
	ID     string `mapstructure:"id"`
	Source string `mapstructure:"source"`
}

// UnitID returns the unit's destination subdirectory name.
func (u Unit) UnitID() string { return u.ID }

// AssetsDir returns the unit's source directory.
func (u Unit) AssetsDir() string { return u.Source }

// NewViper returns a viper instance with defaults and environment binding.
func NewViper(paths *Paths) *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyDestination, paths.Destination)
	v.SetDefault(KeyMode, "runtime")
	v.SetDefault(KeyConcurrency, 4)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyStateDir, paths.State)
	v.SetDefault(KeyDebounce, 200*time.Millisecond)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and decodes it.
// A missing file at the default location is not an error; an explicitly
// named file must exist.
func Load(v *viper.Viper, file string, explicit bool) (*Config, error) {
	if file != "" {
		expanded, err := homedir.Expand(file)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(expanded)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if explicit || !(errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)) {
				return nil, fmt.Errorf("failed to read config %s: %w", expanded, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks unit ids and numeric limits.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	seen := make(map[string]bool, len(c.Units))
	for i, u := range c.Units {
		if err := fsops.ValidateIdentifier(u.ID); err != nil {
			return fmt.Errorf("units[%d]: %w", i, err)
		}
		if u.Source == "" {
			return fmt.Errorf("units[%d] (%s): source is required", i, u.ID)
		}
		if seen[u.ID] {
			return fmt.Errorf("units[%d]: duplicate unit id %q", i, u.ID)
		}
		seen[u.ID] = true
	}
	return nil
}

// Unit returns the configured unit with the given id.
func (c *Config) Unit(id string) (Unit, bool) {
	for _, u := range c.Units {
		if u.ID == id {
			return u, true
		}
	}
	return Unit{}, false
}

func (c *Config) expand() error {
	fields := []*string{&c.Destination, &c.StateDir, &c.MetricsFile, &c.Log.File}
	for i := range c.Units {
		fields = append(fields, &c.Units[i].Source)
	}

	for _, f := range fields {
		expanded, err := homedir.Expand(*f)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *f, err)
		}
		*f = expanded
	}
	return nil
}

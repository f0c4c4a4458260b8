// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Layout sources for the default keymap
const (
	LayoutSourceConfig  = "config"
	LayoutSourceEnv     = "env"
	LayoutSourceLocale1 = "locale1"
)

// Config represents the application configuration
type Config struct {
	Keyboard KeyboardConfig `mapstructure:"keyboard"`
	SHM      SHMConfig      `mapstructure:"shm"`
	Input    InputConfig    `mapstructure:"input"`
	Trace    TraceConfig    `mapstructure:"trace"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// KeyboardConfig describes the layout and repeat behaviour of keyboards
type KeyboardConfig struct {
	Rules   string `mapstructure:"rules"`
	Model   string `mapstructure:"model"`
	Layout  string `mapstructure:"layout"`
	Variant string `mapstructure:"variant"`
	Options string `mapstructure:"options"`

	RepeatRate       uint32 `mapstructure:"repeat_rate"`        // keys per second
	RepeatDelay      uint32 `mapstructure:"repeat_delay"`       // milliseconds
	TrackPressedKeys bool   `mapstructure:"track_pressed_keys"` // send held keys on enter
	LayoutSource     string `mapstructure:"layout_source"`      // config, env or locale1
}

// SHMConfig contains shared memory settings
type SHMConfig struct {
	RuntimeDir string `mapstructure:"runtime_dir"` // Empty means $XDG_RUNTIME_DIR
}

// InputConfig selects the physical keyboard
type InputConfig struct {
	DevicePath string `mapstructure:"device_path"`
	Grab       bool   `mapstructure:"grab"` // Take the device exclusively
}

// TraceConfig controls the outbound event trace
type TraceConfig struct {
	Path string `mapstructure:"path"` // Empty disables tracing
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

// Descriptor returns the layout descriptor of the keyboard section
func (k KeyboardConfig) Descriptor() keymap.Descriptor {
	return keymap.Descriptor{
		Rules:   k.Rules,
		Model:   k.Model,
		Layout:  k.Layout,
		Variant: k.Variant,
		Options: k.Options,
	}
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Keyboard: KeyboardConfig{
			Rules:            "evdev",
			Model:            "pc105",
			Layout:           "us",
			RepeatRate:       25,
			RepeatDelay:      600,
			TrackPressedKeys: true,
			LayoutSource:     LayoutSourceConfig,
		},
		Input: InputConfig{
			Grab: false,
		},
	}

	mu  sync.RWMutex
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("waykbd")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			viper.AddConfigPath(filepath.Join(xdg, "waykbd"))
		}
		if home := os.Getenv("HOME"); home != "" {
			viper.AddConfigPath(filepath.Join(home, ".config", "waykbd"))
		}
		viper.AddConfigPath("/etc/waykbd")
		viper.AddConfigPath(".")
	}

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("keyboard.rules", DefaultConfig.Keyboard.Rules)
	viper.SetDefault("keyboard.model", DefaultConfig.Keyboard.Model)
	viper.SetDefault("keyboard.layout", DefaultConfig.Keyboard.Layout)
	viper.SetDefault("keyboard.variant", DefaultConfig.Keyboard.Variant)
	viper.SetDefault("keyboard.options", DefaultConfig.Keyboard.Options)
	viper.SetDefault("keyboard.repeat_rate", DefaultConfig.Keyboard.RepeatRate)
	viper.SetDefault("keyboard.repeat_delay", DefaultConfig.Keyboard.RepeatDelay)
	viper.SetDefault("keyboard.track_pressed_keys", DefaultConfig.Keyboard.TrackPressedKeys)
	viper.SetDefault("keyboard.layout_source", DefaultConfig.Keyboard.LayoutSource)

	viper.SetDefault("shm.runtime_dir", DefaultConfig.SHM.RuntimeDir)

	viper.SetDefault("input.device_path", DefaultConfig.Input.DevicePath)
	viper.SetDefault("input.grab", DefaultConfig.Input.Grab)

	viper.SetDefault("trace.path", DefaultConfig.Trace.Path)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	return reload()
}

func reload() error {
	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	Set(c)
	return nil
}

// Validate checks values viper cannot type-check
func (c *Config) Validate() error {
	switch c.Keyboard.LayoutSource {
	case LayoutSourceConfig, LayoutSourceEnv, LayoutSourceLocale1:
	default:
		return fmt.Errorf("invalid keyboard.layout_source %q: want %s, %s or %s",
			c.Keyboard.LayoutSource, LayoutSourceConfig, LayoutSourceEnv, LayoutSourceLocale1)
	}
	if c.Keyboard.RepeatRate > 1000 {
		return fmt.Errorf("invalid keyboard.repeat_rate %d: must be at most 1000", c.Keyboard.RepeatRate)
	}
	return nil
}

// Get returns the current configuration
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if cfg == nil {
		// Return defaults if not initialized
		c := DefaultConfig
		return &c
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	mu.Lock()
	defer mu.Unlock()
	cfg = c
}

// Watch calls fn with the new configuration each time the config file
// changes. Invalid edits are reported through onError and ignored.
func Watch(fn func(*Config), onError func(error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := reload(); err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		fn(Get())
	})
	viper.WatchConfig()
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "waykbd", "waykbd.toml")
	}

	home, err := os.UserHomeDir()
	if err != nil || os.Getuid() == 0 {
		return "/etc/waykbd/waykbd.toml"
	}

	return filepath.Join(home, ".config", "waykbd", "waykbd.toml")
}

// UpdateKeyboard stores a new keyboard section and saves it
func UpdateKeyboard(k KeyboardConfig) error {
	viper.Set("keyboard.rules", k.Rules)
	viper.Set("keyboard.model", k.Model)
	viper.Set("keyboard.layout", k.Layout)
	viper.Set("keyboard.variant", k.Variant)
	viper.Set("keyboard.options", k.Options)
	viper.Set("keyboard.repeat_rate", k.RepeatRate)
	viper.Set("keyboard.repeat_delay", k.RepeatDelay)
	viper.Set("keyboard.track_pressed_keys", k.TrackPressedKeys)
	viper.Set("keyboard.layout_source", k.LayoutSource)

	c := *Get()
	c.Keyboard = k
	Set(&c)
	return Save()
}

// UpdateInput stores a new input section and saves it
func UpdateInput(in InputConfig) error {
	viper.Set("input.device_path", in.DevicePath)
	viper.Set("input.grab", in.Grab)

	c := *Get()
	c.Input = in
	Set(&c)
	return Save()
}

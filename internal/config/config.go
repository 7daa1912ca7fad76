package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

const (
	configDirName = "streammd"
	defaultConfig = ".config"
)

var configFiles = []string{
	"config.yaml",
	"config.yml",
	"config.toml",
}

// Config represents the structure of the configuration file used by the application.
type Config struct {
	Stream StreamConfig `yaml:"stream" toml:"stream"`
	Render RenderConfig `yaml:"render" toml:"render"`
	Log    LogConfig    `yaml:"log" toml:"log"`
}

// StreamConfig controls the pace of incremental rendering.
type StreamConfig struct {
	// Speed is the tick interval; 0 ticks once per frame.
	Speed     time.Duration `yaml:"speed" toml:"speed" default:"20ms"`
	ChunkSize int           `yaml:"chunk_size" toml:"chunk_size" default:"4"`
}

// RenderConfig controls output formatting.
type RenderConfig struct {
	// Format is auto, html or terminal.
	Format    string            `yaml:"format" toml:"format" default:"auto"`
	Theme     string            `yaml:"theme" toml:"theme" default:"dark"`
	Wrap      int               `yaml:"wrap" toml:"wrap" default:"120"`
	CodeStyle string            `yaml:"code_style" toml:"code_style" default:"github"`
	Sanitize  bool              `yaml:"sanitize" toml:"sanitize"`
	Emoji     bool              `yaml:"emoji" toml:"emoji"`
	Macros    map[string]string `yaml:"macros" toml:"macros"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level" default:"warn"`
}

// configResult is a struct used to return the configuration and any error that occurs during loading.
type configResult struct {
	config *Config
	err    error
}

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	// Only fails for non-pointer arguments.
	_ = defaults.Set(cfg)
	return cfg
}

// getConfigPath retrieves the path to the configuration directory based on the XDG_CONFIG_HOME environment variable.
func getConfigPath() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configHome = filepath.Join(home, defaultConfig)
	}

	return filepath.Join(configHome, configDirName), nil
}

// LoadFile loads a single configuration file. The format follows the extension.
// Defaults are applied first so values set explicitly to zero are kept.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := NewDefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports settings no stream can run with.
func (c *Config) Validate() error {
	if c.Stream.Speed < 0 {
		return errors.New("stream.speed must not be negative")
	}
	if c.Stream.ChunkSize <= 0 {
		return errors.New("stream.chunk_size must be positive")
	}
	switch c.Render.Format {
	case "auto", "html", "terminal":
	default:
		return fmt.Errorf("unknown render.format %q", c.Render.Format)
	}
	return nil
}

// LoadConfig loads the configuration from the user's home directory, with a timeout.
func LoadConfig(ctx context.Context) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result := make(chan configResult, 1)

	go func() {
		cfg, err := loadConfigFiles(ctx)
		result <- configResult{config: cfg, err: err}
	}()

	done := ctx.Done()
	select {
	case <-done:
		return nil, ctx.Err()
	case r := <-result:
		return r.config, r.err
	}
}

// loadConfigFiles loads configuration files from the user's home directory.
func loadConfigFiles(ctx context.Context) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before loading config: %w", err)
	}

	configDir, err := getConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}

	// Return default config early if directory doesn't exist
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return NewDefaultConfig(), nil
	}

	for _, filename := range configFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		cfg, err := LoadFile(filepath.Join(configDir, filename))
		if err == nil {
			return cfg, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config from %s: %w", filename, err)
		}
	}

	return NewDefaultConfig(), nil
}

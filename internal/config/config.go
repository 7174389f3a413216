// Package config handles loading, defaulting, and hot-reloading of the
// application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// Config is the full application configuration.
type Config struct {
	Script   ScriptConfig   `mapstructure:"script" yaml:"script"`
	Speech   SpeechConfig   `mapstructure:"speech" yaml:"speech"`
	Images   ImagesConfig   `mapstructure:"images" yaml:"images"`
	Music    MusicConfig    `mapstructure:"music" yaml:"music"`
	Sfx      SfxConfig      `mapstructure:"sfx" yaml:"sfx"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Defaults DefaultsConfig `mapstructure:"defaults" yaml:"defaults"`
}

// ScriptConfig configures the script-generation backend.
type ScriptConfig struct {
	Model         string `mapstructure:"model" yaml:"model"`
	FallbackModel string `mapstructure:"fallback_model" yaml:"fallback_model"`
	APIKey        string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL       string `mapstructure:"base_url" yaml:"base_url"`
	MaxRetries    int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// SpeechConfig configures narration synthesis.
type SpeechConfig struct {
	Model  string  `mapstructure:"model" yaml:"model"`
	Voice  string  `mapstructure:"voice" yaml:"voice"`
	Speed  float64 `mapstructure:"speed" yaml:"speed"`
	APIKey string  `mapstructure:"api_key" yaml:"api_key"`
}

// ImagesConfig configures chapter image generation.
type ImagesConfig struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	Source       string `mapstructure:"source" yaml:"source"` // "ai" or "stock"
	Width        int    `mapstructure:"width" yaml:"width"`
	Height       int    `mapstructure:"height" yaml:"height"`
	PerChapter   int    `mapstructure:"per_chapter" yaml:"per_chapter"`
	PexelsAPIKey string `mapstructure:"pexels_api_key" yaml:"pexels_api_key"`
}

// MusicConfig configures background-music search. Required promotes a
// music failure from a skipped asset to a chapter failure.
type MusicConfig struct {
	Enabled         bool    `mapstructure:"enabled" yaml:"enabled"`
	Required        bool    `mapstructure:"required" yaml:"required"`
	JamendoClientID string  `mapstructure:"jamendo_client_id" yaml:"jamendo_client_id"`
	Volume          float64 `mapstructure:"volume" yaml:"volume"`
}

// SfxConfig configures sound-effect search.
type SfxConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	FreesoundAPIKey string `mapstructure:"freesound_api_key" yaml:"freesound_api_key"`
	CacheTTLMinutes int    `mapstructure:"cache_ttl_minutes" yaml:"cache_ttl_minutes"`
}

// QueueConfig configures the batch scheduler.
type QueueConfig struct {
	PackageOnCompletion bool `mapstructure:"package_on_completion" yaml:"package_on_completion"`
	ContinuousChapters  bool `mapstructure:"continuous_chapters" yaml:"continuous_chapters"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DefaultsConfig holds pipeline-wide defaults.
type DefaultsConfig struct {
	ChapterCount  int    `mapstructure:"chapter_count" yaml:"chapter_count"`
	Language      string `mapstructure:"language" yaml:"language"`
	TargetMinutes int    `mapstructure:"target_minutes" yaml:"target_minutes"`
}

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	defaults := DefaultConfig()
	viper.SetDefault("script", defaults.Script)
	viper.SetDefault("speech", defaults.Speech)
	viper.SetDefault("images", defaults.Images)
	viper.SetDefault("music", defaults.Music)
	viper.SetDefault("sfx", defaults.Sfx)
	viper.SetDefault("queue", defaults.Queue)
	viper.SetDefault("server", defaults.Server)
	viper.SetDefault("defaults", defaults.Defaults)

	// Environment variables with STORYMILL_ prefix
	viper.SetEnvPrefix("STORYMILL")
	viper.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.storymill")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	viper.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// Resolved returns a copy of the config with all ${ENV_VAR} references in
// API credentials expanded.
func (c *Config) Resolved() *Config {
	out := *c
	out.Script.APIKey = ResolveEnvVars(c.Script.APIKey)
	out.Speech.APIKey = ResolveEnvVars(c.Speech.APIKey)
	out.Images.PexelsAPIKey = ResolveEnvVars(c.Images.PexelsAPIKey)
	out.Music.JamendoClientID = ResolveEnvVars(c.Music.JamendoClientID)
	out.Sfx.FreesoundAPIKey = ResolveEnvVars(c.Sfx.FreesoundAPIKey)
	return &out
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Storymill configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENROUTER_API_KEY=xxx OPENAI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}

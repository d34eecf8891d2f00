// Package config handles configuration loading for weft. It supports XDG
// config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for weft.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Resources ResourcesConfig `mapstructure:"resources"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Script    ScriptConfig    `mapstructure:"script"`
	State     StateConfig     `mapstructure:"state"`
}

// AnthropicConfig holds LLM provider settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseBedrock routes calls through AWS Bedrock instead of the API.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// MaxTokens caps each completion; 0 uses the adapter default.
	MaxTokens int `mapstructure:"max_tokens"`
}

// ResourcesConfig holds per-session resource limits. Zero means unlimited.
type ResourcesConfig struct {
	MaxTurns   int `mapstructure:"max_turns"`
	MaxContext int `mapstructure:"max_context"`
}

// EvaluatorConfig holds evaluator settings.
type EvaluatorConfig struct {
	// MapWorkers is the bounded fan-out width for map.
	MapWorkers int `mapstructure:"map_workers"`
	// MaxDepth bounds subtask nesting.
	MaxDepth int `mapstructure:"max_depth"`
}

// TemplatesConfig holds template loading settings.
type TemplatesConfig struct {
	// Dir is the directory scanned for template YAML files.
	Dir string `mapstructure:"dir"`
	// Watch enables hot-reloading of template files.
	Watch bool `mapstructure:"watch"`
}

// ScriptConfig holds script-step settings.
type ScriptConfig struct {
	// Timeout is the default script deadline.
	Timeout time.Duration `mapstructure:"timeout"`
	// WorkDir is the working directory for script steps.
	WorkDir string `mapstructure:"work_dir"`
}

// StateConfig holds session audit-log settings.
type StateConfig struct {
	// Path is the SQLite database file; empty disables the audit log.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.weft.yaml in current directory or a parent)
// 3. User config (~/.config/weft/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.use_bedrock", "WEFT_USE_BEDROCK")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("resources.max_turns", cfg.Resources.MaxTurns)
	v.Set("resources.max_context", cfg.Resources.MaxContext)
	v.Set("evaluator.map_workers", cfg.Evaluator.MapWorkers)
	v.Set("evaluator.max_depth", cfg.Evaluator.MaxDepth)
	v.Set("templates.dir", cfg.Templates.Dir)
	v.Set("templates.watch", cfg.Templates.Watch)
	v.Set("script.timeout", cfg.Script.Timeout.String())
	v.Set("script.work_dir", cfg.Script.WorkDir)
	v.Set("state.path", cfg.State.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the project config file path if one exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.max_tokens", 8192)

	v.SetDefault("resources.max_turns", 50)
	v.SetDefault("resources.max_context", 400000)

	v.SetDefault("evaluator.map_workers", 1)
	v.SetDefault("evaluator.max_depth", 5)

	v.SetDefault("templates.dir", "templates")
	v.SetDefault("templates.watch", false)

	v.SetDefault("script.timeout", "2m")
	v.SetDefault("script.work_dir", "")

	v.SetDefault("state.path", "")
}

// getUserConfigDir returns the XDG config directory for weft.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "weft")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "weft")
	}
	return filepath.Join(home, ".config", "weft")
}

// findProjectConfig searches for .weft.yaml in the current directory and its
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".weft.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 8192,
		},
		Resources: ResourcesConfig{
			MaxTurns:   50,
			MaxContext: 400000,
		},
		Evaluator: EvaluatorConfig{
			MapWorkers: 1,
			MaxDepth:   5,
		},
		Templates: TemplatesConfig{
			Dir: "templates",
		},
		Script: ScriptConfig{
			Timeout: 2 * time.Minute,
		},
	}
}

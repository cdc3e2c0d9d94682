// Package configuration loads and saves the agent's settings.
package configuration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	ConfigDirName  = "xmlagent"
	ConfigFileName = "config.yaml"
	EnvPrefix      = "XMLAGENT"
)

// Config is the full set of settings.
type Config struct {
	Model          string            `mapstructure:"model" yaml:"model"`
	OllamaHost     string            `mapstructure:"ollama_host" yaml:"ollama_host,omitempty"`
	Stream         bool              `mapstructure:"stream" yaml:"stream"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Verbose        bool              `mapstructure:"verbose" yaml:"verbose"`
	HistorySize    int               `mapstructure:"history_size" yaml:"history_size"`
	ModelAliases   map[string]string `mapstructure:"model_aliases" yaml:"model_aliases"`
	Paths          PathsConfig       `mapstructure:"paths" yaml:"paths"`
	Shell          ShellConfig       `mapstructure:"shell" yaml:"shell"`
	Session        SessionConfig     `mapstructure:"session" yaml:"session"`
	WebUI          WebUIConfig       `mapstructure:"webui" yaml:"webui"`
	Search         SearchConfig      `mapstructure:"search" yaml:"search"`
}

// PathsConfig locates the agent's state files, relative to the working directory.
type PathsConfig struct {
	Plan    string `mapstructure:"plan" yaml:"plan"`
	Memory  string `mapstructure:"memory" yaml:"memory"`
	History string `mapstructure:"history" yaml:"history"`
}

// ShellConfig controls how model-suggested commands run.
type ShellConfig struct {
	UsePTY bool `mapstructure:"use_pty" yaml:"use_pty"`
}

// SessionConfig bounds the chat loop.
type SessionConfig struct {
	// MaxContinuations caps how many times command results are fed back to
	// the model for one user message.
	MaxContinuations int `mapstructure:"max_continuations" yaml:"max_continuations"`
}

// WebUIConfig configures the plan viewer.
type WebUIConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// SearchConfig configures /search.
type SearchConfig struct {
	Endpoint   string `mapstructure:"endpoint" yaml:"endpoint"`
	MaxResults int    `mapstructure:"max_results" yaml:"max_results"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Model:          "openrouter/deepseek/deepseek-r1",
		Stream:         true,
		TimeoutSeconds: 120,
		Verbose:        false,
		HistorySize:    100,
		ModelAliases: map[string]string{
			"flash":  "openrouter/google/gemini-2.0-flash-001",
			"r1":     "deepseek/deepseek-reasoner",
			"claude": "openrouter/anthropic/claude-3.7-sonnet",
		},
		Paths: PathsConfig{
			Plan:    "agent_plan.xml",
			Memory:  "agent_memory.xml",
			History: "chat_history.json",
		},
		Session: SessionConfig{MaxContinuations: 5},
		WebUI:   WebUIConfig{Addr: "127.0.0.1:7788"},
		Search: SearchConfig{
			Endpoint:   "https://api.duckduckgo.com/",
			MaxResults: 5,
		},
	}
}

// SetDefaults registers the defaults with v.
func SetDefaults(v *viper.Viper) {
	d := NewConfig()
	v.SetDefault("model", d.Model)
	v.SetDefault("ollama_host", d.OllamaHost)
	v.SetDefault("stream", d.Stream)
	v.SetDefault("timeout_seconds", d.TimeoutSeconds)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("history_size", d.HistorySize)
	v.SetDefault("model_aliases", d.ModelAliases)
	v.SetDefault("paths.plan", d.Paths.Plan)
	v.SetDefault("paths.memory", d.Paths.Memory)
	v.SetDefault("paths.history", d.Paths.History)
	v.SetDefault("shell.use_pty", d.Shell.UsePTY)
	v.SetDefault("session.max_continuations", d.Session.MaxContinuations)
	v.SetDefault("webui.addr", d.WebUI.Addr)
	v.SetDefault("search.endpoint", d.Search.Endpoint)
	v.SetDefault("search.max_results", d.Search.MaxResults)
}

// GetConfigDir returns $XDG_CONFIG_HOME/xmlagent, or ~/.config/xmlagent.
func GetConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, ConfigDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", ConfigDirName), nil
}

// GetConfigPath returns the full path to the config file
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// NewViper returns a viper instance with defaults, environment overrides
// and, when it exists, the config file at path. An empty path uses the
// default location.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return nil, err
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Load reads the configuration at path (default location when empty).
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ModelAliases == nil {
		cfg.ModelAliases = map[string]string{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the agent cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Model) == "" {
		problems = append(problems, "model must not be empty")
	}
	if c.TimeoutSeconds <= 0 {
		problems = append(problems, "timeout_seconds must be positive")
	}
	if c.HistorySize < 0 {
		problems = append(problems, "history_size must not be negative")
	}
	if c.Session.MaxContinuations < 0 {
		problems = append(problems, "session.max_continuations must not be negative")
	}
	if c.Search.MaxResults <= 0 {
		problems = append(problems, "search.max_results must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Save writes c as YAML to path (default location when empty), creating
// the directory.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Timeout returns the request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveModel expands an alias, returning other names unchanged. An empty
// name resolves to the configured model.
func (c *Config) ResolveModel(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return c.Model
	}
	if target, ok := c.ModelAliases[name]; ok {
		return target
	}
	return name
}

// Set assigns one dotted key, such as "shell.use_pty", from its string form.
func (c *Config) Set(key, value string) error {
	v := viper.New()
	raw, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(string(raw))); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !v.IsSet(key) && !knownKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil || parsed == nil {
		parsed = value
	}
	v.Set(key, parsed)
	updated, err := FromViper(v)
	if err != nil {
		return err
	}
	*c = *updated
	return nil
}

func knownKey(key string) bool {
	return strings.HasPrefix(key, "model_aliases.") || key == "ollama_host"
}

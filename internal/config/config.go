// Package config loads the server's YAML bootstrap configuration.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
)

// LLMConfig holds one provider family's bootstrap settings.
type LLMConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL,omitempty"`
}

// EnvironmentConfig declares one named environment a session can run
// against: either a fixed path ("local") or a folder-template that
// gets materialized per session.
type EnvironmentConfig struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"` // "local" | "folder-template"
	Path          string `yaml:"path,omitempty"`
	TemplatePath  string `yaml:"template_path,omitempty"`
	StartupScript string `yaml:"startup_script,omitempty"`
}

// RunnerConfig declares a remote tool-execution runner the server
// expects to connect (or dial out to) by name.
type RunnerConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Config is the complete bootstrap configuration, loaded once at
// process start from a single YAML file.
type Config struct {
	Host             string                       `yaml:"host"`
	Port             int                          `yaml:"port"`
	DatabasePath     string                       `yaml:"databasePath"`
	WorkspacesPath   string                       `yaml:"workspaces_path"`
	LLM              map[string]LLMConfig         `yaml:"llm"`
	LLMRequestLogDir string                       `yaml:"llm_request_log_dir,omitempty"`
	Environments     []EnvironmentConfig          `yaml:"environments"`
	Runners          []RunnerConfig               `yaml:"runners"`
}

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 5530
)

// providerEnvVars maps a provider id to the environment variable that
// overrides its API key, checked after the file is parsed so deployments can
// keep API keys out of the YAML file entirely.
var providerEnvVars = map[string]string{
	"openai":    "WUHU_OPENAI_API_KEY",
	"anthropic": "WUHU_ANTHROPIC_API_KEY",
}

// Load reads and validates the YAML config at path, applying
// environment-variable overrides for provider API keys. A .env file
// in the working directory is loaded first (if present) so deployers
// can drop API keys there instead of exporting them into the shell;
// variables already set in the environment take precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wuhuerr.Wrap(wuhuerr.ConfigInvalid, err, fmt.Sprintf("read config file %q", path))
	}

	cfg := &Config{
		Host: DefaultHost,
		Port: DefaultPort,
		LLM:  make(map[string]LLMConfig),
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, wuhuerr.Wrap(wuhuerr.ConfigInvalid, err, "parse config yaml")
	}

	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LLM == nil {
		cfg.LLM = make(map[string]LLMConfig)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	for provider, envVar := range providerEnvVars {
		key := os.Getenv(envVar)
		if key == "" {
			continue
		}
		entry := cfg.LLM[provider]
		entry.APIKey = key
		cfg.LLM[provider] = entry
	}
}

// Validate checks the structural invariants Load relies on: a
// database path must be set, and environment/runner names must be
// unique (the session actor and runner registry both key by name).
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return wuhuerr.New(wuhuerr.ConfigInvalid, "databasePath is required")
	}

	seenEnv := make(map[string]bool, len(c.Environments))
	for _, e := range c.Environments {
		if e.Name == "" {
			return wuhuerr.New(wuhuerr.ConfigInvalid, "environment entry missing name")
		}
		if seenEnv[e.Name] {
			return wuhuerr.New(wuhuerr.ConfigInvalid, fmt.Sprintf("duplicate environment name %q", e.Name))
		}
		seenEnv[e.Name] = true
		switch e.Type {
		case "local":
			if e.Path == "" {
				return wuhuerr.New(wuhuerr.ConfigInvalid, fmt.Sprintf("environment %q: type local requires path", e.Name))
			}
		case "folder-template":
			if e.TemplatePath == "" {
				return wuhuerr.New(wuhuerr.ConfigInvalid, fmt.Sprintf("environment %q: type folder-template requires template_path", e.Name))
			}
		default:
			return wuhuerr.New(wuhuerr.ConfigInvalid, fmt.Sprintf("environment %q: unknown type %q", e.Name, e.Type))
		}
	}

	seenRunner := make(map[string]bool, len(c.Runners))
	for _, r := range c.Runners {
		if r.Name == "" {
			return wuhuerr.New(wuhuerr.ConfigInvalid, "runner entry missing name")
		}
		if seenRunner[r.Name] {
			return wuhuerr.New(wuhuerr.ConfigInvalid, fmt.Sprintf("duplicate runner name %q", r.Name))
		}
		seenRunner[r.Name] = true
	}

	return nil
}

// FindEnvironment looks up a declared environment by name.
func (c *Config) FindEnvironment(name string) (EnvironmentConfig, bool) {
	for _, e := range c.Environments {
		if e.Name == name {
			return e, true
		}
	}
	return EnvironmentConfig{}, false
}
